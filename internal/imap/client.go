package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"helpdesk/backend/internal/domain"
)

// imapSession 基于 go-imap v2 的 MailSession 实现。
type imapSession struct {
	client *imapclient.Client
}

// DialAccount 按账户配置建立并认证一条 IMAP 会话。
//
// ssl 模式走隐式 TLS，starttls 模式先明文再升级，
// none 仅用于本地调试。ValidateCert 关闭时跳过证书校验
// （按账户显式选择，自签名邮件服务器常见）。
func DialAccount(_ context.Context, account *domain.Account) (MailSession, error) {
	tlsConfig := &tls.Config{
		ServerName:         account.Host,
		InsecureSkipVerify: !account.ValidateCert,
	}
	options := &imapclient.Options{TLSConfig: tlsConfig}

	var (
		client *imapclient.Client
		err    error
	)
	switch account.Encryption {
	case domain.EncryptionSSL:
		client, err = imapclient.DialTLS(account.Addr(), options)
	case domain.EncryptionStartTLS:
		client, err = imapclient.DialStartTLS(account.Addr(), options)
	case domain.EncryptionNone:
		client, err = imapclient.DialInsecure(account.Addr(), options)
	default:
		return nil, &ConnectionError{
			AccountID: account.ID,
			Email:     account.Email,
			Cause:     fmt.Errorf("unknown encryption mode %q", account.Encryption),
		}
	}
	if err != nil {
		return nil, &ConnectionError{AccountID: account.ID, Email: account.Email, Cause: err}
	}

	if err := client.Login(account.Username, account.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, &ConnectionError{
			AccountID: account.ID,
			Email:     account.Email,
			Cause:     fmt.Errorf("login: %w", err),
		}
	}

	return &imapSession{client: client}, nil
}

// Check 通过 NOOP 探测会话是否仍然可用。
func (s *imapSession) Check(_ context.Context) error {
	return s.client.Noop().Wait()
}

// ListNew 选择 INBOX（只读），按日期搜索新邮件并返回拉取迭代器。
func (s *imapSession) ListNew(_ context.Context, since time.Time) (MessageIter, error) {
	// 只读 SELECT，保证不产生 \Seen 以外的任何副作用
	if _, err := s.client.Select("INBOX", &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, fmt.Errorf("select INBOX: %w", err)
	}

	// SINCE 只有日期精度，秒级的边界过滤在迭代器里补齐
	criteria := &imap.SearchCriteria{Since: since}
	searchData, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search since %s: %w", since.Format(time.RFC3339), err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return &fetchIter{}, nil
	}

	var uidSet imap.UIDSet
	uidSet.AddNum(uids...)

	// BODY.PEEK 拉取全文但不标记已读
	fetchOptions := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{{Peek: true}},
	}
	cmd := s.client.Fetch(uidSet, fetchOptions)

	return &fetchIter{cmd: cmd, since: since}, nil
}

func (s *imapSession) Close() error {
	if err := s.client.Logout().Wait(); err != nil {
		return s.client.Close()
	}
	return nil
}

// fetchIter 包装 go-imap 的流式 FETCH 响应。
type fetchIter struct {
	cmd   *imapclient.FetchCommand
	since time.Time
}

// Next 取下一封邮件并解析为 RawMessage。
// 单封邮件解析失败不终止流，退化为仅含原文的消息继续交给上层。
func (it *fetchIter) Next() (*domain.RawMessage, error) {
	if it.cmd == nil {
		return nil, nil
	}
	for {
		msg := it.cmd.Next()
		if msg == nil {
			// 流结束。Close 返回中途断连等错误。
			err := it.cmd.Close()
			it.cmd = nil
			if err != nil {
				return nil, fmt.Errorf("fetch stream: %w", err)
			}
			return nil, nil
		}

		buf, err := msg.Collect()
		if err != nil {
			return nil, fmt.Errorf("collect message: %w", err)
		}

		var raw []byte
		for _, section := range buf.BodySection {
			if len(section.Bytes) > 0 {
				raw = section.Bytes
				break
			}
		}

		parsed := ParseRawMessage(uint32(buf.UID), raw)

		// SINCE 是日期精度，这里做秒级边界过滤（含边界）
		if !parsed.Date.IsZero() && parsed.Date.Before(it.since) {
			continue
		}
		return parsed, nil
	}
}

func (it *fetchIter) Close() error {
	if it.cmd == nil {
		return nil
	}
	err := it.cmd.Close()
	it.cmd = nil
	return err
}
