package content

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"helpdesk/backend/internal/domain"
)

func TestNormalizer_Normalize(t *testing.T) {
	n := NewNormalizer("")

	t.Run("HTML 正文剥除脚本", func(t *testing.T) {
		raw := &domain.RawMessage{HTML: `<p>hello</p><script>alert(1)</script><iframe src="x"></iframe>`}
		out := n.Normalize(raw)
		assert.Contains(t, out, "<p>hello</p>")
		assert.NotContains(t, out, "script")
		assert.NotContains(t, out, "iframe")
	})

	t.Run("链接强制 nofollow", func(t *testing.T) {
		raw := &domain.RawMessage{HTML: `<a href="https://example.com">link</a>`}
		out := n.Normalize(raw)
		assert.Contains(t, out, `rel="nofollow"`)
		assert.Contains(t, out, `href="https://example.com"`)
	})

	t.Run("事件属性被剥除", func(t *testing.T) {
		raw := &domain.RawMessage{HTML: `<p onclick="steal()">text</p>`}
		out := n.Normalize(raw)
		assert.NotContains(t, out, "onclick")
		assert.Contains(t, out, "text")
	})

	t.Run("纯文本转义后包 pre", func(t *testing.T) {
		raw := &domain.RawMessage{Text: "price < 100 & rising\nsecond line"}
		out := n.Normalize(raw)
		assert.Contains(t, out, "<pre")
		assert.Contains(t, out, "price &lt; 100 &amp; rising")
		assert.NotContains(t, out, "price < 100")
	})

	t.Run("HTML 优先于纯文本", func(t *testing.T) {
		raw := &domain.RawMessage{HTML: "<p>rich</p>", Text: "plain"}
		assert.Contains(t, n.Normalize(raw), "rich")
		assert.NotContains(t, n.Normalize(raw), "plain")
	})

	t.Run("空正文返回占位符", func(t *testing.T) {
		assert.Equal(t, "<p>No content available</p>", n.Normalize(&domain.RawMessage{}))
	})
}

func TestNormalizer_RelativeURLs(t *testing.T) {
	n := NewNormalizer("https://files.acme.test/")

	t.Run("相对地址补全为绝对地址", func(t *testing.T) {
		raw := &domain.RawMessage{HTML: `<img src="/images/logo.png" alt="logo">`}
		out := n.Normalize(raw)
		assert.Contains(t, out, `src="https://files.acme.test/images/logo.png"`)
	})

	t.Run("绝对地址保持不变", func(t *testing.T) {
		raw := &domain.RawMessage{HTML: `<a href="https://other.test/page">x</a>`}
		out := n.Normalize(raw)
		assert.Contains(t, out, `href="https://other.test/page"`)
	})
}
