// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はお茶の名前・メーカー名などの自由入力テキストから
// HTMLタグを除去し、UIで安全に表示できるプレーンテキストにする。
// bluemondayのStrictPolicyを使用し、すべてのタグを取り除く。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxSanitizeRounds はエスケープ済みタグ（&lt;b&gt; 等）を展開しながら
// 再サニタイズする最大回数。
const maxSanitizeRounds = 3

// TextSanitizer は自由入力テキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// SanitizeText はHTMLタグを除去し、前後の空白を取り除いたプレーンテキストを返す。
	// "&" などの文字はエンティティのまま残さず元の文字に戻す。
	// 同一入力に対して常に同一出力を返し、出力を再度渡しても変化しない（冪等）。
	SanitizeText(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフなので共有して使う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText はHTMLタグを除去したプレーンテキストを返す。
func (s *textSanitizer) SanitizeText(raw string) string {
	out := strings.TrimSpace(raw)
	for i := 0; i < maxSanitizeRounds; i++ {
		next := strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(out)))
		if next == out {
			break
		}
		out = next
	}
	return strings.Join(strings.Fields(out), " ")
}
