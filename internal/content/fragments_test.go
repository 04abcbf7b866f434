package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFragments(t *testing.T) {
	t.Run("回复与引用切分", func(t *testing.T) {
		text := "Thanks, that fixed it.\n" +
			"On Mon, Aug 3, 2026 at 9:00 AM Support <support@acme.test> wrote:\n" +
			"> Have you tried turning it off and on again?\n" +
			"> It usually helps."

		fragments := ParseFragments(text)
		require.Len(t, fragments, 2)

		assert.False(t, fragments[0].Quoted)
		assert.Equal(t, "Thanks, that fixed it.", fragments[0].Text)

		// 引用头行要跟着它引出的引用走
		assert.True(t, fragments[1].Quoted)
		assert.Contains(t, fragments[1].Text, "wrote:")
		assert.Contains(t, fragments[1].Text, "turning it off")
	})

	t.Run("签名切分", func(t *testing.T) {
		text := "See you tomorrow.\n--\nJane Doe\nAcme Corp"

		fragments := ParseFragments(text)
		require.Len(t, fragments, 2)
		assert.False(t, fragments[0].Signature)
		assert.True(t, fragments[1].Signature)
		assert.Contains(t, fragments[1].Text, "Jane Doe")
	})

	t.Run("中文引用头", func(t *testing.T) {
		text := "收到，多谢。\n在 2026年8月3日，客服 写道：\n> 请重启设备试试。"

		fragments := ParseFragments(text)
		require.Len(t, fragments, 2)
		assert.False(t, fragments[0].Quoted)
		assert.True(t, fragments[1].Quoted)
	})

	t.Run("纯正文只有一个片段", func(t *testing.T) {
		fragments := ParseFragments("Just a plain message.\nSecond line.")
		require.Len(t, fragments, 1)
		assert.False(t, fragments[0].Quoted)
		assert.False(t, fragments[0].Signature)
	})
}

func TestVisibleReply(t *testing.T) {
	t.Run("剥掉引用和签名", func(t *testing.T) {
		text := "Still broken after the update.\n" +
			"On Tue, Aug 4, 2026 at 10:00 AM Support wrote:\n" +
			"> Please install the latest version.\n" +
			"--\n" +
			"Sent from my iPhone"

		assert.Equal(t, "Still broken after the update.", VisibleReply(text))
	})

	t.Run("整封都是引用时原样返回", func(t *testing.T) {
		text := "> the whole message\n> is quoted"
		assert.Equal(t, text, VisibleReply(text))
	})

	t.Run("穿插的回复段落全部保留", func(t *testing.T) {
		text := "> did you reboot?\nYes, twice.\n> and the firmware?\nUpdated yesterday."
		visible := VisibleReply(text)
		assert.Contains(t, visible, "Yes, twice.")
		assert.Contains(t, visible, "Updated yesterday.")
		assert.NotContains(t, visible, "did you reboot?")
	})
}
