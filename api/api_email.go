package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log/level"
	"github.com/hibiken/asynq"
	"github.com/siparmail/sipar-server/api/interceptors"
	"github.com/siparmail/sipar-server/global"
	"github.com/siparmail/sipar-server/services"
	"github.com/siparmail/sipar-server/types"
)

type EmailApi struct {
	messageService *services.MessageService
	s3Service      *services.S3Service
	env            *types.Environment
}

func NewEmailApi(messageService *services.MessageService, env *types.Environment) *EmailApi {
	return &EmailApi{
		messageService: messageService,
		s3Service:      services.NewS3Service(env),
		env:            env,
	}
}

// ListEmails returns summaries for one owned alias, newest first.
func (ea *EmailApi) ListEmails(c *gin.Context) {
	account := interceptors.GetAccount(c)
	if account == nil {
		ApiErrorf(c, http.StatusUnauthorized, "session required")
		return
	}
	alias := c.Query("alias")
	if alias == "" {
		ApiErrorf(c, http.StatusBadRequest, "alias query parameter is required")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))

	records, lErr := ea.messageService.List(account.Username, alias, limit, skip)
	if lErr != nil {
		level.Error(global.Logger).Log("msg", "failed to list emails", "user", account.Username, "error", lErr.Error())
		ApiErrorf(c, http.StatusInternalServerError, "failed to list emails")
		return
	}
	output := make([]*types.OutputEmailSummary, 0, len(records))
	for _, record := range records {
		output = append(output, toOutputEmailSummary(record))
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "emails": output})
}

// GetEmail returns one full email record.
func (ea *EmailApi) GetEmail(c *gin.Context) {
	account := interceptors.GetAccount(c)
	if account == nil {
		ApiErrorf(c, http.StatusUnauthorized, "session required")
		return
	}
	id := c.Param("id")

	record, gErr := ea.messageService.Get(account.Username, id)
	if gErr != nil {
		if gErr == types.ErrNotFound {
			ApiErrorf(c, http.StatusNotFound, "email not found")
			return
		}
		level.Error(global.Logger).Log("msg", "failed to get email", "id", id, "error", gErr.Error())
		ApiErrorf(c, http.StatusInternalServerError, "failed to get email")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "email": toOutputEmail(record)})
}

// GetRawEmail streams the archived raw message for an owned record.
func (ea *EmailApi) GetRawEmail(c *gin.Context) {
	account := interceptors.GetAccount(c)
	if account == nil {
		ApiErrorf(c, http.StatusUnauthorized, "session required")
		return
	}
	id := c.Param("id")

	record, gErr := ea.messageService.Get(account.Username, id)
	if gErr != nil {
		if gErr == types.ErrNotFound {
			ApiErrorf(c, http.StatusNotFound, "email not found")
			return
		}
		level.Error(global.Logger).Log("msg", "failed to get email", "id", id, "error", gErr.Error())
		ApiErrorf(c, http.StatusInternalServerError, "failed to get email")
		return
	}
	if record.RawKey == "" || !ea.env.HasBlobStorage() {
		ApiErrorf(c, http.StatusNotFound, "raw message not archived")
		return
	}

	raw, dErr := ea.s3Service.DownloadRaw(record.RawKey)
	if dErr != nil {
		if dErr == types.ErrNotFound {
			ApiErrorf(c, http.StatusNotFound, "raw message not archived")
			return
		}
		level.Error(global.Logger).Log("msg", "failed to download raw message", "key", record.RawKey, "error", dErr.Error())
		ApiErrorf(c, http.StatusInternalServerError, "failed to download raw message")
		return
	}
	c.Data(http.StatusOK, "message/rfc822", raw)
}

// DeleteEmail removes one owned record; the archived blob is cleaned
// up afterwards as a fire-and-forget task.
func (ea *EmailApi) DeleteEmail(c *gin.Context) {
	account := interceptors.GetAccount(c)
	if account == nil {
		ApiErrorf(c, http.StatusUnauthorized, "session required")
		return
	}
	id := c.Param("id")

	rawKey, dErr := ea.messageService.Delete(account.Username, id)
	if dErr != nil {
		if dErr == types.ErrNotFound {
			ApiErrorf(c, http.StatusNotFound, "email not found")
			return
		}
		level.Error(global.Logger).Log("msg", "failed to delete email", "id", id, "error", dErr.Error())
		ApiErrorf(c, http.StatusInternalServerError, "failed to delete email")
		return
	}

	if rawKey != "" && ea.env != nil && ea.env.TaskClient != nil {
		task, tErr := types.NewDeleteBlobsTask(&types.DeleteBlobsTask{Keys: []string{rawKey}})
		if tErr != nil {
			level.Error(global.Logger).Log("msg", "failed to create blob delete task", "error", tErr.Error())
		} else if _, qErr := ea.env.TaskClient.Enqueue(task, asynq.MaxRetry(3)); qErr != nil {
			level.Error(global.Logger).Log("msg", "failed to enqueue blob delete task", "error", qErr.Error())
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func toOutputEmailSummary(record *types.EmailRecord) *types.OutputEmailSummary {
	return &types.OutputEmailSummary{
		ID:      record.UnderscoreID,
		Alias:   record.LocalPart,
		From:    record.From,
		Subject: record.Subject,
		Date:    record.Date,
		Size:    record.Size,
		Created: record.Created,
	}
}

func toOutputEmail(record *types.EmailRecord) *types.OutputEmail {
	return &types.OutputEmail{
		OutputEmailSummary: *toOutputEmailSummary(record),
		To:                 record.To,
		BodyText:           record.BodyText,
		BodyHTML:           record.BodyHTML,
		HasRaw:             record.RawKey != "",
	}
}
