package security

import "testing"

// TestSanitize_StripsMarkup はタグが除去され本文が残ることを検証する。
func TestSanitize_StripsMarkup(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "空文字列はそのまま", input: "", want: ""},
		{name: "プレーンテキストは変更されない", input: "Monstera deliciosa", want: "Monstera deliciosa"},
		{name: "scriptタグは中身ごと除去される", input: `Fern<script>alert("x")</script>`, want: "Fern"},
		{name: "装飾タグは除去され本文が残る", input: "<b>north</b> window", want: "north window"},
		{name: "イベント属性を持つタグも除去される", input: `<img src=x onerror=alert(1)>pothos`, want: "pothos"},
		{name: "アンパサンドは保持される", input: "salt & pepper", want: "salt & pepper"},
		{name: "前後の空白は取り除かれる", input: "  cactus  ", want: "cactus"},
		{name: "日本語も保持される", input: "<i>観葉植物</i>", want: "観葉植物"},
		{name: "文字参照でエンコードされたタグも除去される", input: "&lt;b&gt;Fern&lt;/b&gt;", want: "Fern"},
		{name: "二重にエンコードされたタグも除去される", input: "&amp;lt;script&amp;gt;x&amp;lt;/script&amp;gt;Ivy", want: "Ivy"},
		{name: "不等号単体は保持される", input: "height < 30cm", want: "height < 30cm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitize_Idempotent は同一入力を繰り返しサニタイズしても結果が変わらないことを検証する。
// 保存済みの値をそのまま送り直す更新で名前が変わらないための前提。
func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()
	inputs := []string{
		"<p>water <em>weekly</em></p>",
		"&lt;b&gt;Fern&lt;/b&gt;",
		"&amp;lt;i&amp;gt;Ivy&amp;lt;/i&amp;gt;",
		"salt &amp; pepper",
		"a &lt; b",
	}

	for _, input := range inputs {
		first := sanitizer.Sanitize(input)
		second := sanitizer.Sanitize(first)
		if first != second {
			t.Errorf("not idempotent for %q: %q -> %q", input, first, second)
		}
	}
}
