package model

import "time"

// Document は永続化と同期の単位となる {teas, queue} ドキュメント。
type Document struct {
	Teas  []Tea    `json:"teas"`
	Queue []string `json:"queue"`
}

// RemoteDocument はリモートの共有行から読み出したドキュメント。
type RemoteDocument struct {
	Document
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

// EmptyDocument は空のドキュメントを返す。
// nilではなく空スライスを持つため、JSONでは [] として出力される。
func EmptyDocument() Document {
	return Document{Teas: []Tea{}, Queue: []string{}}
}

// Clone はドキュメントの深いコピーを返す。
func (d Document) Clone() Document {
	out := Document{
		Teas:  make([]Tea, len(d.Teas)),
		Queue: make([]string, len(d.Queue)),
	}
	for i, t := range d.Teas {
		out.Teas[i] = t.Clone()
	}
	copy(out.Queue, d.Queue)
	return out
}

// FindTea は指定IDのお茶のインデックスを返す。見つからない場合は-1を返す。
func (d Document) FindTea(id string) int {
	for i, t := range d.Teas {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// TeaIDs はお茶のIDをコレクション順で返す。
func (d Document) TeaIDs() []string {
	ids := make([]string, len(d.Teas))
	for i, t := range d.Teas {
		ids[i] = t.ID
	}
	return ids
}

// ReconcileQueue はキューをお茶のID集合に合わせて再導出する。
// 既存の並び順は維持し、存在しないID・重複IDを除去し、
// キューに無いIDはコレクション順で末尾に追加する。
func ReconcileQueue(teas []Tea, queue []string) []string {
	known := make(map[string]bool, len(teas))
	for _, t := range teas {
		known[t.ID] = true
	}

	out := make([]string, 0, len(teas))
	seen := make(map[string]bool, len(teas))
	for _, id := range queue {
		if !known[id] || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, t := range teas {
		if !seen[t.ID] {
			seen[t.ID] = true
			out = append(out, t.ID)
		}
	}
	return out
}

// MoveToQueueTail は指定IDをキューの末尾へ移動した新しいスライスを返す。
// IDがキューに無い場合は末尾に追加する。
func MoveToQueueTail(queue []string, id string) []string {
	out := make([]string, 0, len(queue)+1)
	for _, q := range queue {
		if q != id {
			out = append(out, q)
		}
	}
	return append(out, id)
}

// Normalize はnilスライスを空スライスに置き換え、重複IDのお茶は先頭の1件だけ残し、
// キューを再導出したドキュメントを返す。
func (d Document) Normalize() Document {
	out := d.Clone()
	if out.Teas == nil {
		out.Teas = []Tea{}
	}
	out.Teas = dedupeTeas(out.Teas)
	out.Queue = ReconcileQueue(out.Teas, out.Queue)
	return out
}

// dedupeTeas は同じIDの2件目以降を取り除いたスライスを返す。
func dedupeTeas(teas []Tea) []Tea {
	seen := make(map[string]bool, len(teas))
	out := make([]Tea, 0, len(teas))
	for _, t := range teas {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out
}

// SelectionModeGrid は唯一サポートされている選択モード。
const SelectionModeGrid = "grid"

// Settings は端末ローカルのUI設定。現在は選択モードのみで値は固定。
type Settings struct {
	SelectionMode string `json:"selectionMode"`
}

// DefaultSettings は既定の設定を返す。
func DefaultSettings() Settings {
	return Settings{SelectionMode: SelectionModeGrid}
}
