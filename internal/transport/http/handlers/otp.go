package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zaedhealth/identity-service/internal/core/domain"
	"github.com/zaedhealth/identity-service/internal/usecase"
)

// OTPHandler exposes the phone OTP send and verify endpoints.
type OTPHandler struct {
	otp *usecase.OTPService
}

// NewOTPHandler constructs OTPHandler.
func NewOTPHandler(otp *usecase.OTPService) *OTPHandler {
	return &OTPHandler{otp: otp}
}

// RegisterRoutes binds OTP routes onto the provided group.
func (h *OTPHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/otp/send", h.send)
	r.POST("/otp/verify", h.verify)
}

// Send godoc
// @Summary Dispatch a one-time code to a phone number
// @Description Generates a short-lived numeric code and delivers it over the requested channel.
// @Tags OTP
// @Accept json
// @Produce json
// @Param request body OTPSendRequest true "OTP send request"
// @Success 200 {object} OTPSendResponse
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} middleware.ProblemDetails
// @Failure 502 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/otp/send [post]
func (h *OTPHandler) send(c *gin.Context) {
	var req OTPSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid otp payload"))
		return
	}

	channel := strings.ToUpper(strings.TrimSpace(req.Channel))
	if channel == "" {
		channel = usecase.ChannelSMS
	}

	delivery, err := h.otp.Send(c.Request.Context(), usecase.SendOTPInput{
		Phone:       strings.TrimSpace(req.Phone),
		Channel:     channel,
		Context:     domain.OtpContext(strings.ToUpper(strings.TrimSpace(req.Context))),
		ReferenceID: strings.TrimSpace(req.ReferenceID),
		IP:          c.ClientIP(),
	})
	if err != nil {
		var rateErr *usecase.RateLimitExceededError
		if errors.As(err, &rateErr) {
			respondRateLimitExceeded(c, rateErr, "Too many codes requested for this phone.")
			return
		}

		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidOtpContext, Status: http.StatusBadRequest, Message: "unknown otp context"},
			{Err: usecase.ErrOtpDelivery, Status: http.StatusBadGateway, Message: "failed to deliver code"},
		}, http.StatusInternalServerError, "failed to send code")
		return
	}

	c.JSON(http.StatusOK, OTPSendResponse{
		ExpiresIn:   delivery.ExpiresIn,
		MaskedPhone: delivery.MaskedPhone,
		Channel:     delivery.Channel,
	})
}

// Verify godoc
// @Summary Verify a one-time code
// @Description Checks the submitted code and mints a scoped temp token on success.
// @Tags OTP
// @Accept json
// @Produce json
// @Param request body OTPVerifyRequest true "OTP verify request"
// @Success 200 {object} OTPVerifyResponse
// @Failure 400 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/otp/verify [post]
func (h *OTPHandler) verify(c *gin.Context) {
	var req OTPVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid otp payload"))
		return
	}

	verification, err := h.otp.Verify(c.Request.Context(), usecase.VerifyOTPInput{
		Phone:        strings.TrimSpace(req.Phone),
		Code:         strings.TrimSpace(req.Code),
		Context:      domain.OtpContext(strings.ToUpper(strings.TrimSpace(req.Context))),
		ReferenceID:  strings.TrimSpace(req.ReferenceID),
		TrackingCode: strings.TrimSpace(req.TrackingCode),
		IP:           c.ClientIP(),
	})
	if err != nil {
		var invalidErr *usecase.InvalidOtpError
		if errors.As(err, &invalidErr) {
			response := NewErrorResponse(c, "invalid code")
			remaining := invalidErr.RemainingAttempts
			response.RemainingAttempts = &remaining
			c.JSON(http.StatusBadRequest, response)
			return
		}

		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidOtpContext, Status: http.StatusBadRequest, Message: "unknown otp context"},
			{Err: usecase.ErrOtpExpired, Status: http.StatusGone, Message: "code expired, request a new one"},
			{Err: usecase.ErrTooManyAttempts, Status: http.StatusTooManyRequests, Message: "too many attempts, request a new code"},
		}, http.StatusInternalServerError, "failed to verify code")
		return
	}

	c.JSON(http.StatusOK, OTPVerifyResponse{
		TempToken: verification.TempToken,
		ExpiresIn: verification.ExpiresIn,
	})
}
