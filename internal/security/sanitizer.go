// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer は管理者が入力したテキストを外部へ配信する前に無害化する。
// データベース上の値は変更せず、出力時にのみ適用する。
type Sanitizer struct {
	text  *bluemonday.Policy
	media *bluemonday.Policy
}

// NewSanitizer は新しいSanitizerを生成する。
// media ポリシーは p, br, strong, em と https の img のみを許可する。
func NewSanitizer() *Sanitizer {
	media := bluemonday.NewPolicy()
	media.AllowElements("p", "br", "strong", "em")
	media.AllowAttrs("src", "alt").OnElements("img")
	media.AllowRelativeURLs(false)
	media.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return u.Host != ""
	})

	return &Sanitizer{
		text:  bluemonday.StrictPolicy(),
		media: media,
	}
}

// PlainText はHTMLタグをすべて取り除いたテキストを返す。
// 取り除いた後に残る文字参照はデコードする。
func (s *Sanitizer) PlainText(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.text.Sanitize(raw)))
}

// MediaHTML はサムネイル付きの説明文など、配信用に組み立てたHTMLを無害化する。
func (s *Sanitizer) MediaHTML(rawHTML string) string {
	return s.media.Sanitize(rawHTML)
}
