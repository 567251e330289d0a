package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"transitpay/internal/http/middleware"
	"transitpay/internal/services"
	"transitpay/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type stkCallbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string      `json:"MerchantRequestID"`
			CheckoutRequestID string      `json:"CheckoutRequestID"`
			ResultCode        json.Number `json:"ResultCode"`
			ResultDesc        string      `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// Callback handles POST /api/payments/callback. The provider does not retry,
// so the response is always 200 and failures only reach the log.
func (h PaymentHandler) Callback(c *gin.Context) {
	reqID := middleware.GetRequestID(c)
	ack := gin.H{"ResultCode": 0, "ResultDesc": "Accepted"}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		utils.LogError(reqID, "payments", "callback_read", err)
		c.JSON(http.StatusOK, ack)
		return
	}

	cb, err := parseCallback(raw)
	if err != nil {
		utils.LogError(reqID, "payments", "callback_parse", err)
		c.JSON(http.StatusOK, ack)
		return
	}

	outcome, err := h.Engine.OnCallback(c.Request.Context(), cb)
	if err != nil {
		utils.LogError(reqID, "payments", "callback", err, zap.String("checkout_request_id", cb.CheckoutRequestID))
	} else {
		utils.LogEvent(reqID, "payments", "callback", "callback processed",
			zap.String("checkout_request_id", cb.CheckoutRequestID), zap.String("outcome", string(outcome)))
	}
	c.JSON(http.StatusOK, ack)
}

func parseCallback(raw []byte) (services.CallbackResult, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var env stkCallbackEnvelope
	if err := dec.Decode(&env); err != nil {
		return services.CallbackResult{}, err
	}
	stk := env.Body.StkCallback
	if stk.CheckoutRequestID == "" {
		return services.CallbackResult{}, fmt.Errorf("callback without CheckoutRequestID")
	}

	meta := map[string]string{}
	for _, item := range stk.CallbackMetadata.Item {
		if item.Value == nil {
			continue
		}
		meta[item.Name] = fmt.Sprint(item.Value)
	}
	return services.CallbackResult{
		MerchantRequestID: stk.MerchantRequestID,
		CheckoutRequestID: stk.CheckoutRequestID,
		ResultCode:        stk.ResultCode.String(),
		ResultDesc:        stk.ResultDesc,
		Metadata:          meta,
	}, nil
}
