package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"transitpay/internal/config"
	"transitpay/internal/domain"
	"transitpay/internal/utils"

	"go.uber.org/zap"
)

const (
	tokenPath = "/oauth/v1/generate?grant_type=client_credentials"
	pushPath  = "/mpesa/stkpush/v1/processrequest"
	queryPath = "/mpesa/stkpushquery/v1/query"

	// error code returned by the query API while the customer has not answered yet
	codeStillProcessing = "500.001.1001"
)

// DarajaClient talks to the Safaricom Daraja STK push API.
type DarajaClient struct {
	cfg    config.MpesaConfig
	client *http.Client
	now    func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewDarajaClient(cfg config.MpesaConfig) *DarajaClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.TransactionType == "" {
		cfg.TransactionType = "CustomerPayBillOnline"
	}
	return &DarajaClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

type tokenResp struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// accessToken returns a cached token, refreshing a minute before expiry.
func (d *DarajaClient) accessToken(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.token != "" && d.now().Before(d.expiresAt) {
		return d.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.cfg.BaseURL+tokenPath, nil)
	if err != nil {
		return "", domain.GatewayError{Op: "token", Err: err}
	}
	req.SetBasicAuth(d.cfg.ConsumerKey, d.cfg.ConsumerSecret)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", domain.GatewayError{Op: "token", Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", responseError("token", resp.StatusCode, body)
	}

	var out tokenResp
	if err := json.Unmarshal(body, &out); err != nil || out.AccessToken == "" {
		return "", domain.GatewayError{Op: "token", StatusCode: resp.StatusCode, Msg: "invalid token response", Err: err}
	}

	ttl, _ := strconv.Atoi(out.ExpiresIn)
	if ttl <= 0 {
		ttl = 3599
	}
	d.token = out.AccessToken
	d.expiresAt = d.now().Add(time.Duration(ttl)*time.Second - time.Minute)
	return d.token, nil
}

func (d *DarajaClient) password(ts string) string {
	return base64.StdEncoding.EncodeToString([]byte(d.cfg.ShortCode + d.cfg.Passkey + ts))
}

type stkPushReq struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResp struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

func (d *DarajaClient) Push(ctx context.Context, in PushRequest) (PushResponse, error) {
	ts := utils.GatewayTimestamp(d.now())
	callback := in.CallbackURL
	if callback == "" {
		callback = d.cfg.CallbackURL
	}
	desc := in.Description
	if desc == "" {
		desc = "Fare payment"
	}

	payload := stkPushReq{
		BusinessShortCode: d.cfg.ShortCode,
		Password:          d.password(ts),
		Timestamp:         ts,
		TransactionType:   d.cfg.TransactionType,
		Amount:            utils.WholeUnits(in.Amount),
		PartyA:            in.Phone,
		PartyB:            d.cfg.ShortCode,
		PhoneNumber:       in.Phone,
		CallBackURL:       callback,
		AccountReference:  truncate(in.Reference, 12),
		TransactionDesc:   truncate(desc, 13),
	}

	var out stkPushResp
	status, err := d.post(ctx, "push", pushPath, payload, &out)
	if err != nil {
		return PushResponse{}, err
	}
	if out.ResponseCode != "0" || out.CheckoutRequestID == "" {
		return PushResponse{}, domain.GatewayError{
			Op:         "push",
			StatusCode: status,
			Code:       out.ResponseCode,
			Msg:        firstNonEmpty(out.ResponseDescription, out.CustomerMessage, "push rejected"),
		}
	}

	utils.LogEvent("", "gateway", "push", "stk push accepted",
		zap.String("checkout_request_id", out.CheckoutRequestID),
		zap.String("phone", utils.MaskPhone(in.Phone)),
	)
	return PushResponse{
		Accepted:          true,
		CheckoutRequestID: out.CheckoutRequestID,
		MerchantRequestID: out.MerchantRequestID,
		Description:       out.CustomerMessage,
	}, nil
}

type stkQueryReq struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResp struct {
	ResponseCode      string `json:"ResponseCode"`
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        string `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	MpesaReceipt      string `json:"MpesaReceiptNumber"`
}

// QueryStatus asks the provider for the outcome of a push.
// A "still processing" error is returned as an empty, inconclusive result.
func (d *DarajaClient) QueryStatus(ctx context.Context, checkoutRequestID string) (StatusResponse, error) {
	ts := utils.GatewayTimestamp(d.now())
	payload := stkQueryReq{
		BusinessShortCode: d.cfg.ShortCode,
		Password:          d.password(ts),
		Timestamp:         ts,
		CheckoutRequestID: checkoutRequestID,
	}

	var out stkQueryResp
	_, err := d.post(ctx, "query", queryPath, payload, &out)
	if err != nil {
		var gwErr domain.GatewayError
		if errors.As(err, &gwErr) && gwErr.Code == codeStillProcessing {
			return StatusResponse{ResultDescription: gwErr.Msg}, nil
		}
		return StatusResponse{}, err
	}
	return StatusResponse{
		ResultCode:        strings.TrimSpace(out.ResultCode),
		ResultDescription: out.ResultDesc,
		ReceiptNumber:     out.MpesaReceipt,
	}, nil
}

func (d *DarajaClient) post(ctx context.Context, op, path string, payload, out any) (int, error) {
	token, err := d.accessToken(ctx)
	if err != nil {
		return 0, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, domain.GatewayError{Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, domain.GatewayError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, domain.GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		d.invalidateToken()
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, responseError(op, resp.StatusCode, respBody)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return resp.StatusCode, domain.GatewayError{Op: op, StatusCode: resp.StatusCode, Msg: "invalid response body", Err: err}
	}
	return resp.StatusCode, nil
}

func (d *DarajaClient) invalidateToken() {
	d.mu.Lock()
	d.token = ""
	d.mu.Unlock()
}

type darajaErrorBody struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
	Fault        *struct {
		FaultString string `json:"faultstring"`
	} `json:"fault"`
}

func responseError(op string, status int, body []byte) error {
	var e darajaErrorBody
	_ = json.Unmarshal(body, &e)

	msg := e.ErrorMessage
	if msg == "" && e.Fault != nil {
		msg = e.Fault.FaultString
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	return domain.GatewayError{
		Op:          op,
		StatusCode:  status,
		Code:        e.ErrorCode,
		Msg:         msg,
		RateLimited: status == http.StatusTooManyRequests || isSpikeArrest(msg),
	}
}

func isSpikeArrest(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "spike arrest") || strings.Contains(m, "spikearrest") || strings.Contains(m, "rate limit")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var _ PaymentGateway = (*DarajaClient)(nil)

// String hides credentials when the client ends up in a log line.
func (d *DarajaClient) String() string {
	return fmt.Sprintf("DarajaClient{base=%s shortcode=%s}", d.cfg.BaseURL, d.cfg.ShortCode)
}
