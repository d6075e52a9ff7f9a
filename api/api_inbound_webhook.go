package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/siparmail/sipar-server/global"
	"github.com/siparmail/sipar-server/metrics"
	"github.com/siparmail/sipar-server/services"
	"github.com/siparmail/sipar-server/types"
)

// InputInboundMessage is the provider webhook payload. Raw carries the
// full MIME message base64 encoded.
type InputInboundMessage struct {
	From string `json:"from"`
	To   string `json:"to" binding:"required"`
	Size int64  `json:"size"`
	Raw  []byte `json:"raw" binding:"required"`
}

type InboundWebhookApi struct {
	inboundService *services.InboundService
}

func NewInboundWebhookApi(inboundService *services.InboundService) *InboundWebhookApi {
	return &InboundWebhookApi{
		inboundService: inboundService,
	}
}

// ReceiveMail is the inbound transport callback. Status codes speak
// the provider's language: 200 accepted, 406 bounce and do not retry,
// 500 retry later. Internal failure detail never leaves the server.
func (iw *InboundWebhookApi) ReceiveMail(c *gin.Context) {
	var input InputInboundMessage
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid webhook payload")
		return
	}

	start := time.Now()
	result := iw.inboundService.ProcessInbound(c.Request.Context(), &types.InboundMessage{
		From:    input.From,
		To:      input.To,
		RawSize: input.Size,
		Raw:     input.Raw,
	})
	metrics.InboundProcessingLatency.Observe(float64(time.Since(start).Milliseconds()))

	if result.Accepted {
		metrics.InboundAcceptedMetricsCount.Inc()
		global.Logger.Log("msg", "inbound message accepted", "id", result.EmailID)
		c.JSON(http.StatusOK, gin.H{"ok": true, "id": result.EmailID})
		return
	}

	metrics.InboundRejectedMetricsCount.WithLabelValues(result.Reason).Inc()
	if result.Temporary {
		ApiErrorf(c, http.StatusInternalServerError, "temporary processing error")
		return
	}
	c.JSON(http.StatusNotAcceptable, gin.H{"ok": false, "error": result.Reason})
}
