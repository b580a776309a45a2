package errHandler

import (
	"fmt"
	"log/slog"
	"net/http"

	"runtime/debug"
	"strings"

	"github.com/naijaswap/bridge/internal/funcs"
	"github.com/naijaswap/bridge/internal/response"
	"github.com/naijaswap/bridge/internal/smtp"
)

// Error codes surfaced in the response envelope's "code" field, per spec §7.
const (
	CodeInsufficientLiquidity = "INSUFFICIENT_LIQUIDITY"
	CodeConfigMissing         = "CONFIG_MISSING"
	CodeUpstreamUnavailable   = "UPSTREAM_UNAVAILABLE"
)

type ErrorRepository struct {
	notificationEmail string
	env               string
	baseURL           string
	logger            *slog.Logger
	mailer            *smtp.Mailer
}

// New constructs the error handler. It intentionally takes no dependency on
// internal/helper: helper.BackgroundTask reports panics through this type,
// so the reverse dependency would be circular.
func New(env, baseURL, notificationEmail string, mailer *smtp.Mailer, logger *slog.Logger) *ErrorRepository {
	return &ErrorRepository{
		notificationEmail: notificationEmail,
		env:               env,
		baseURL:           baseURL,
		logger:            logger,
		mailer:            mailer,
	}
}

func (e *ErrorRepository) emailData() map[string]any {
	return map[string]any{"BaseURL": e.baseURL}
}

func (e *ErrorRepository) ReportServerError(r *http.Request, err error) {
	var (
		message = err.Error()
		method  = ""
		url     = ""
		trace   = string(debug.Stack())
	)

	if r != nil {
		method = r.Method
		url = r.URL.String()
	}

	requestAttrs := slog.Group("request", "method", method, "url", url)
	e.logger.Error(message, requestAttrs, "trace", trace)

	if e.notificationEmail != "" {
		data := e.emailData()
		data["Message"] = message
		data["RequestMethod"] = method
		data["RequestURL"] = url
		data["Trace"] = trace

		err := e.mailer.Send(e.notificationEmail, data, "error-notification.tmpl")
		if err != nil {
			trace = string(debug.Stack())
			e.logger.Error(err.Error(), requestAttrs, "trace", trace)
		}
	}
}

// ReportManualSettlement logs and alerts ops about a transaction that
// received tokens/received a webhook but couldn't be safely finalized. A
// "NgnAmountRaw" field, if present, is rendered through funcs.FormatNGN
// into "NgnAmount" before it ever reaches the log line or the email.
func (e *ErrorRepository) ReportManualSettlement(reference, reason string, fields map[string]any) {
	if raw, ok := fields["NgnAmountRaw"].(int64); ok {
		delete(fields, "NgnAmountRaw")
		fields["NgnAmount"] = funcs.FormatNGN(raw)
	}

	attrs := []any{"reference", reference, "reason", reason}
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	e.logger.Error("manual settlement required", attrs...)

	if e.notificationEmail == "" {
		return
	}

	data := e.emailData()
	data["Reference"] = reference
	data["Reason"] = reason
	for k, v := range fields {
		data[k] = v
	}

	if err := e.mailer.Send(e.notificationEmail, data, "manual-settlement.tmpl"); err != nil {
		e.logger.Error("failed to send manual settlement alert", "error", err.Error(), "reference", reference)
	}
}

type Error struct {
	w       http.ResponseWriter
	r       *http.Request
	errors  any
	status  int
	message string
	code    string
	headers http.Header
}

func (e *ErrorRepository) ErrorMessage(d *Error) {
	if d.message != "" {
		d.message = strings.ToUpper(d.message[:1]) + d.message[1:]
	}

	err := response.JSONErrorResponseWithCode(d.w, d.errors, d.message, d.status, d.code, d.headers)
	if err != nil {
		e.ReportServerError(d.r, err)
		d.w.WriteHeader(http.StatusInternalServerError)
	}
}

func (e *ErrorRepository) ServerError(w http.ResponseWriter, r *http.Request, err error) {
	e.ReportServerError(r, err)

	message := "The server encountered a problem and could not process your request"
	if e.env != "production" {
		message = err.Error()
	}

	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusInternalServerError,
		message: message,
	})
}

func (e *ErrorRepository) NotFound(w http.ResponseWriter, r *http.Request) {
	message := "The requested resource could not be found"
	e.ErrorMessage(&Error{
		w:      w,
		r:      r,
		status: http.StatusNotFound,
		message: message,
	})
}

func (e *ErrorRepository) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	message := fmt.Sprintf("The %s method is not supported for this resource", r.Method)
	e.ErrorMessage(&Error{
		w:      w,
		r:      r,
		status: http.StatusMethodNotAllowed,
		message: message,
	})
}

func (e *ErrorRepository) BadRequest(w http.ResponseWriter, r *http.Request, err error) {
	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusBadRequest,
		message: err.Error(),
	})
}

func (e *ErrorRepository) FailedValidation(w http.ResponseWriter, r *http.Request, v any) {
	message := "Validation failed"

	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusBadRequest,
		message: message,
		errors:  v,
	})
}

// Conflict is returned when a conditional update's precondition failed for
// a reason other than an idempotent repeat (spec §7 ConflictOfState).
func (e *ErrorRepository) Conflict(w http.ResponseWriter, r *http.Request, reason string) {
	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusBadRequest,
		message: reason,
	})
}

// UpstreamUnavailable is used for oracle/chain/payout-provider outages
// (502) and for liquidity/config unavailability (503, via status param).
func (e *ErrorRepository) UpstreamUnavailable(w http.ResponseWriter, r *http.Request, status int, message string) {
	if message == "" {
		message = "An upstream service is currently unavailable"
	}
	e.ErrorMessage(&Error{
		w:      w,
		r:      r,
		status: status,
		message: message,
		code:   CodeUpstreamUnavailable,
	})
}

// InsufficientLiquidity is the machine-readable-code error for a rejected
// offramp init, optionally carrying a suggested max order size.
func (e *ErrorRepository) InsufficientLiquidity(w http.ResponseWriter, r *http.Request, maxOrderNGN *int64) {
	data := map[string]any{}
	if maxOrderNGN != nil {
		data["maxOrderNGN"] = *maxOrderNGN
	}

	err := response.JSONErrorResponseWithCode(w, data, "Insufficient platform liquidity for this order", http.StatusServiceUnavailable, CodeInsufficientLiquidity, nil)
	if err != nil {
		e.ReportServerError(r, err)
	}
}

// ConfigMissing signals a required runtime configuration value wasn't set.
func (e *ErrorRepository) ConfigMissing(w http.ResponseWriter, r *http.Request, what string) {
	e.ErrorMessage(&Error{
		w:      w,
		r:      r,
		status: http.StatusServiceUnavailable,
		message: fmt.Sprintf("%s is not configured", what),
		code:   CodeConfigMissing,
	})
}

func (e *ErrorRepository) TooManyRequests(w http.ResponseWriter, r *http.Request) {
	e.ErrorMessage(&Error{
		w:      w,
		r:      r,
		status: http.StatusTooManyRequests,
		message: "Too many requests, please slow down",
	})
}

func (e *ErrorRepository) InvalidAuthenticationToken(w http.ResponseWriter, r *http.Request) {
	headers := make(http.Header)
	headers.Set("WWW-Authenticate", "Bearer")

	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusUnauthorized,
		message: "Invalid authentication token",
		headers: headers,
	})
}

func (e *ErrorRepository) AuthenticationRequired(w http.ResponseWriter, r *http.Request) {
	message := "You must be authenticated to access this resource"
	e.ErrorMessage(&Error{
		w:      w,
		r:      r,
		status: http.StatusUnauthorized,
		message: message,
	})
}
