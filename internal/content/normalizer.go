package content

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"helpdesk/backend/internal/domain"
)

// Normalizer 把解析后的邮件正文归一化为可安全入库展示的 HTML。
//
// 选择顺序：HTML 正文 > 纯文本（转义后包 pre）> 占位符。
// 归一化永不失败：输入再脏也产出可展示内容。
type Normalizer struct {
	policy  *bluemonday.Policy
	uriBase string
}

// NewNormalizer 创建正文归一化器。
// uriBase 用于把相对链接、相对图片地址补全为绝对地址，可为空。
func NewNormalizer(uriBase string) *Normalizer {
	return &Normalizer{
		policy:  buildPolicy(uriBase),
		uriBase: strings.TrimRight(uriBase, "/"),
	}
}

// Normalize 返回消息的展示正文。
func (n *Normalizer) Normalize(raw *domain.RawMessage) string {
	if strings.TrimSpace(raw.HTML) != "" {
		return n.sanitizeHTML(raw.HTML)
	}
	if strings.TrimSpace(raw.Text) != "" {
		return `<pre style="white-space: pre-wrap;">` + html.EscapeString(raw.Text) + `</pre>`
	}
	return "<p>No content available</p>"
}

// relativeURLAttr 匹配 href/src 里的相对地址（不含协议、不含锚点、不含 //）
var relativeURLAttr = regexp.MustCompile(`(href|src)="(/[^/"][^"]*)"`)

func (n *Normalizer) sanitizeHTML(input string) string {
	out := n.policy.Sanitize(input)
	if n.uriBase != "" {
		out = relativeURLAttr.ReplaceAllString(out, `$1="`+n.uriBase+`$2"`)
	}
	return strings.TrimSpace(out)
}

// buildPolicy 构造 HTML 白名单策略。
//
// 标签与属性白名单对齐常见邮件正文需要：基础排版、列表、
// 表格、链接和内嵌图片。脚本、表单、iframe 一律剥除。
func buildPolicy(uriBase string) *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "b", "strong", "i", "em", "u", "s",
		"ul", "ol", "li",
		"span", "div", "blockquote", "pre", "code", "hr",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"table", "thead", "tbody", "tr", "td", "th",
	)

	p.AllowAttrs("href", "title").OnElements("a")
	p.AllowAttrs("src", "alt", "title", "width", "height").OnElements("img")
	p.AllowStandardURLs()
	p.AllowRelativeURLs(uriBase != "")
	p.RequireNoFollowOnLinks(true)

	// 内联样式只放行安全的排版属性
	p.AllowAttrs("style").OnElements("p", "span", "div", "td", "th", "pre", "blockquote")
	p.AllowStyles(
		"color", "background-color",
		"font-size", "font-weight", "font-style", "font-family",
		"text-align", "text-decoration",
		"margin", "margin-left", "margin-right",
		"padding", "white-space",
		"border", "width", "height",
	).Globally()

	return p
}
