package services

import (
	"fmt"
	"time"

	"github.com/go-kit/log/level"
	"github.com/go-resty/resty/v2"
	"github.com/siparmail/sipar-server/global"
)

// MailerService delivers transactional email (password-reset tokens)
// through the configured HTTP provider. It is invoked off the request
// path only; the reset endpoint answers uniformly before delivery is
// even attempted.
type MailerService struct {
	restyClient *resty.Client
}

func NewMailerService() *MailerService {
	client := resty.New().
		SetTimeout(time.Second * 15).
		SetHeader("Content-Type", "application/json")
	if global.Conf.Mailer.APIKey != "" {
		client.SetAuthToken(global.Conf.Mailer.APIKey)
	}
	return &MailerService{
		restyClient: client,
	}
}

// SendResetToken mails the reset token. When no provider is
// configured the token is only logged, which keeps development setups
// working.
func (ms *MailerService) SendResetToken(email, token string) error {
	if global.Conf.Mailer.APIURL == "" {
		global.Logger.Log("msg", "no mail provider configured, reset token not delivered", "email", email)
		return nil
	}

	body := map[string]interface{}{
		"from":    global.Conf.Mailer.From,
		"to":      []string{email},
		"subject": "Reset password",
		"text": fmt.Sprintf("Gunakan token berikut untuk mengatur ulang password Anda: %s\n"+
			"Token berlaku selama %d menit.", token, global.Conf.Sipar.ResetTTLSeconds/60),
	}
	resp, err := ms.restyClient.R().SetBody(body).Post(global.Conf.Mailer.APIURL)
	if err != nil {
		return err
	}
	if resp.IsError() {
		level.Error(global.Logger).Log("msg", "mail provider rejected reset email", "status", resp.Status())
		return fmt.Errorf("mail provider error: %s", resp.Status())
	}
	return nil
}
