// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はユーザーが入力した自由記述（植物名・品種・メモ）から
// HTMLタグを取り除き、プレーンテキストとして保存できる形に整える。
// bluemondayのStrictPolicyを使用し、すべてのタグと属性を除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト入力のサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize はHTMLタグを除去し、前後の空白を取り除いたプレーンテキストを返す。
	// タグ以外の文字（&や<単体など）はそのまま保持する。
	// 文字参照でエンコードされたタグ（&lt;b&gt;など）も除去するため、
	// 出力を再度Sanitizeしても変化しない。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフなため、1インスタンスを共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// maxSanitizePasses は不動点に達するまでの除去処理の上限回数。
const maxSanitizePasses = 16

// Sanitize はHTMLタグを除去したプレーンテキストを返す。
// 文字参照を戻すと新たなタグが現れることがあるため、出力が変化しなくなるまで繰り返す。
func (s *textSanitizer) Sanitize(raw string) string {
	out := strings.TrimSpace(raw)
	for i := 0; i < maxSanitizePasses && out != ""; i++ {
		// StrictPolicyは出力をHTMLエスケープするため、保存用に元へ戻す
		next := strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(out)))
		if next == out {
			return out
		}
		out = next
	}
	// 上限に達した場合は山括弧を残さない
	return strings.TrimSpace(strings.NewReplacer("<", "", ">", "").Replace(out))
}

// compile-time interface check
var _ TextSanitizer = (*textSanitizer)(nil)
