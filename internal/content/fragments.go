package content

import (
	"regexp"
	"strings"
)

// Fragment 邮件正文中的一个连续片段。
type Fragment struct {
	Text      string
	Quoted    bool
	Signature bool
}

// 各语言邮件客户端常见的引用头，如 "On Mon, Jan 2 ... wrote:"
var quoteHeaderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^On .{1,500}wrote:$`),
	regexp.MustCompile(`(?i)^Am .{1,500}schrieb .{1,100}:$`),
	regexp.MustCompile(`(?i)^Le .{1,500}a écrit :$`),
	regexp.MustCompile(`^在.{1,500}写道：$`),
	regexp.MustCompile(`(?i)^-{2,}\s*Original Message\s*-{2,}$`),
	regexp.MustCompile(`(?i)^-{2,}\s*Forwarded message\s*-{2,}$`),
	regexp.MustCompile(`(?i)^From:\s.+$`),
	regexp.MustCompile(`(?i)^_{5,}$`),
}

var signaturePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^--\s*$`),
	regexp.MustCompile(`^—\s*$`),
	regexp.MustCompile(`(?i)^Sent from my (iPhone|iPad|Android|Galaxy|Huawei|mobile)`),
	regexp.MustCompile(`(?i)^(Best regards|Kind regards|Regards|Cheers|Thanks|Thank you|Mit freundlichen Grüßen),?\s*$`),
}

// ParseFragments 把纯文本正文切分为回复、引用和签名片段。
// 顺序保持原文顺序。
func ParseFragments(text string) []Fragment {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")

	var fragments []Fragment
	var current []string
	var quoted, signature bool

	flush := func() {
		if len(current) == 0 {
			return
		}
		body := strings.TrimRight(strings.Join(current, "\n"), "\n ")
		if strings.TrimSpace(body) != "" {
			fragments = append(fragments, Fragment{Text: body, Quoted: quoted, Signature: signature})
		}
		current = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		isQuote := strings.HasPrefix(trimmed, ">")

		switch {
		case !signature && matchesAny(trimmed, signaturePatterns):
			flush()
			signature = true
			quoted = false
		case isQuote != quoted && !signature:
			// 引用头行归入它引出的引用片段
			if isQuote && len(current) > 0 {
				if header := strings.TrimSpace(current[len(current)-1]); matchesAny(header, quoteHeaderPatterns) {
					current = current[:len(current)-1]
					flush()
					current = append(current, header)
				} else {
					flush()
				}
			} else {
				flush()
			}
			quoted = isQuote
		}
		current = append(current, line)
	}
	flush()

	return fragments
}

// VisibleReply 返回去掉引用和签名之后的可见回复文本。
// 整封邮件都是引用时原样返回，避免把正文剥成空串。
func VisibleReply(text string) string {
	fragments := ParseFragments(text)

	var visible []string
	for _, f := range fragments {
		if f.Quoted || f.Signature {
			continue
		}
		visible = append(visible, f.Text)
	}

	result := strings.TrimSpace(strings.Join(visible, "\n"))
	if result == "" {
		return strings.TrimSpace(text)
	}
	return result
}

func matchesAny(line string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}
