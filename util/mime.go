package util

import (
	"bytes"
	"net/mail"
	"strings"

	"github.com/jhillyerd/enmime"
	"github.com/microcosm-cc/bluemonday"
	"github.com/siparmail/sipar-server/types"
)

var htmlPolicy = bluemonday.UGCPolicy()

// ParseRawMail turns a raw MIME buffer into the structured fields the
// mail router persists. HTML is sanitized before it is ever stored.
func ParseRawMail(raw []byte) (*types.ParsedMail, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	from := env.GetHeader("From")
	if addr, aErr := mail.ParseAddress(from); aErr == nil {
		from = addr.Address
	}

	date := int64(0)
	if d, dErr := mail.ParseDate(env.GetHeader("Date")); dErr == nil {
		date = d.UTC().UnixMilli()
	}

	html := env.HTML
	if html != "" {
		html = htmlPolicy.Sanitize(html)
	}

	return &types.ParsedMail{
		Subject: strings.TrimSpace(env.GetHeader("Subject")),
		From:    from,
		Date:    date,
		Text:    env.Text,
		HTML:    html,
	}, nil
}
