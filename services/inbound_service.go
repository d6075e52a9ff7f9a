package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/siparmail/sipar-server/global"
	"github.com/siparmail/sipar-server/repository"
	"github.com/siparmail/sipar-server/types"
	"github.com/siparmail/sipar-server/util"
)

// InboundService is the inbound mail router: it authorizes the
// envelope recipient, enforces the raw size ceiling, parses, persists
// and optionally archives each message.
type InboundService struct {
	aliasService *AliasService
	userRepo     repository.Repository
	emailRepo    repository.Repository
	env          *types.Environment

	// MIME collaborator, swappable in tests
	parse func(raw []byte) (*types.ParsedMail, error)
}

func NewInboundService(dbSelector repository.DBSelector, env *types.Environment) *InboundService {
	userRepo, uErr := dbSelector.ChooseDB(repository.Users)
	if uErr != nil {
		panic(uErr)
	}
	emailRepo, eErr := dbSelector.ChooseDB(repository.Emails)
	if eErr != nil {
		panic(eErr)
	}
	return &InboundService{
		aliasService: NewAliasService(dbSelector),
		userRepo:     userRepo,
		emailRepo:    emailRepo,
		env:          env,
		parse:        util.ParseRawMail,
	}
}

func rejected(reason string, temporary bool) *types.InboundResult {
	return &types.InboundResult{Accepted: false, Reason: reason, Temporary: temporary}
}

// ProcessInbound drives one message to a terminal outcome. Permanent
// rejections tell the transport to bounce; temporary ones tell it to
// retry. No internal error ever escapes raw.
func (is *InboundService) ProcessInbound(ctx context.Context, msg *types.InboundMessage) *types.InboundResult {
	// 1. envelope recipient must be local@<organization domain>
	localPart, domain, rErr := util.SplitRecipient(msg.To)
	if rErr != nil || domain != global.Conf.Sipar.Domain {
		return rejected(types.RejectBadRecipient, false)
	}

	// 2. single authorization gate: alias exists, alias enabled, owner
	// enabled; no partial credit
	alias, aErr := is.aliasService.GetActive(ctx, localPart)
	if aErr != nil {
		if aErr == types.ErrNotFound {
			return rejected(types.RejectUnknownRecipient, false)
		}
		level.Error(global.Logger).Log("msg", "alias lookup failed", "local", localPart, "error", aErr.Error())
		return rejected(types.RejectTemporary, true)
	}
	owner, oErr := is.getEnabledOwner(ctx, alias.User)
	if oErr != nil {
		if oErr == types.ErrNotFound || oErr == types.ErrDisabled {
			return rejected(types.RejectUnknownRecipient, false)
		}
		level.Error(global.Logger).Log("msg", "owner lookup failed", "user", alias.User, "error", oErr.Error())
		return rejected(types.RejectTemporary, true)
	}

	// 3. size ceiling, checked against the transport's hint before the
	// body is ever materialized
	maxBytes := global.Conf.Sipar.MaxRawBytes
	if msg.RawSize > maxBytes {
		return rejected(types.RejectTooLarge, false)
	}
	if int64(len(msg.Raw)) > maxBytes {
		return rejected(types.RejectTooLarge, false)
	}

	// 4. hand the raw buffer to the MIME collaborator
	parsed, pErr := is.parse(msg.Raw)
	if pErr != nil {
		level.Error(global.Logger).Log("msg", "mime parse failed", "local", localPart, "error", pErr.Error())
		return rejected(types.RejectTemporary, true)
	}

	// 5. lossy truncation of both bodies, independently
	maxChars := global.Conf.Sipar.MaxBodyChars
	bodyText := util.TruncateRunes(parsed.Text, maxChars)
	bodyHTML := util.TruncateRunes(parsed.HTML, maxChars)

	from := parsed.From
	if from == "" {
		from = msg.From
	}

	// 6. persist the denormalized record
	id := uuid.NewString()
	record := &types.EmailRecord{
		User:      owner.Username,
		LocalPart: localPart,
		From:      from,
		To:        fmt.Sprintf("%s@%s", localPart, domain),
		Subject:   parsed.Subject,
		Date:      parsed.Date,
		BodyText:  bodyText,
		BodyHTML:  bodyHTML,
		Size:      int64(len(msg.Raw)),
		Created:   time.Now().UTC().UnixMilli(),
	}
	if is.env != nil && is.env.HasBlobStorage() {
		record.RawKey = fmt.Sprintf("emails/%s.eml", id)
	}
	if sErr := is.emailRepo.Save(ctx, id, record); sErr != nil {
		level.Error(global.Logger).Log("msg", "failed to persist email record", "local", localPart, "error", sErr.Error())
		return rejected(types.RejectTemporary, true)
	}

	// 7. best-effort raw archival after the record is committed;
	// failure is logged, never rolled back
	is.enqueueArchive(id, record.RawKey, msg.Raw)

	return &types.InboundResult{Accepted: true, EmailID: id}
}

func (is *InboundService) getEnabledOwner(ctx context.Context, username string) (*types.Account, error) {
	resp, gErr := is.userRepo.GetByID(ctx, username)
	if gErr != nil {
		return nil, gErr
	}
	var account types.Account
	if mErr := repository.MapToObject(resp, &account); mErr != nil {
		return nil, mErr
	}
	if !account.Enabled {
		return nil, types.ErrDisabled
	}
	return &account, nil
}

func (is *InboundService) enqueueArchive(id, key string, raw []byte) {
	if key == "" || is.env == nil || is.env.TaskClient == nil {
		return
	}
	task, tErr := types.NewArchiveRawTask(&types.ArchiveRawTask{EmailID: id, Key: key, Raw: raw})
	if tErr != nil {
		level.Error(global.Logger).Log("msg", "failed to create archive task", "emailId", id, "error", tErr.Error())
		return
	}
	_, qErr := is.env.TaskClient.Enqueue(task,
		asynq.MaxRetry(3),
		asynq.Timeout(120*time.Second),
		asynq.TaskID("archive:"+id))
	if qErr != nil {
		level.Error(global.Logger).Log("msg", "failed to enqueue archive task", "emailId", id, "error", qErr.Error())
	}
}
