package httpserver

import (
	"net/http"

	"github.com/dmitrijs2005/patientvault/internal/common"
	"github.com/dmitrijs2005/patientvault/internal/server/models"
	"github.com/labstack/echo/v4"
)

func bindError(err error) error {
	return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
}

func (s *HTTPServer) handleOTPRequest(c echo.Context) error {
	var body otpRequestBody
	if err := c.Bind(&body); err != nil {
		return bindError(err)
	}

	res, err := s.identity.RequestOTP(c.Request().Context(), body.AadhaarNumber)
	if err != nil {
		return err
	}

	out := otpRequestResponse{Status: "ok", TxnID: res.TxnID, Message: res.Message}
	if s.opts.DebugOTP {
		out.DebugOTP = res.DebugOTP
	}
	return c.JSON(http.StatusOK, out)
}

func (s *HTTPServer) handleOTPVerify(c echo.Context) error {
	var body otpVerifyBody
	if err := c.Bind(&body); err != nil {
		return bindError(err)
	}

	p, err := s.identity.VerifyOTP(c.Request().Context(), body.AadhaarNumber, body.TxnID, body.OTP)
	s.metrics.AuthAttempt("otp", err == nil)
	if err != nil {
		return err
	}
	return s.startSession(c, p, true)
}

func (s *HTTPServer) handleQRVerify(c echo.Context) error {
	var body qrVerifyBody
	if err := c.Bind(&body); err != nil {
		return bindError(err)
	}

	p, err := s.identity.LoginWithQR(c.Request().Context(), body.QR)
	s.metrics.AuthAttempt("qr", err == nil)
	if err != nil {
		return err
	}
	return s.startSession(c, p, true)
}

func (s *HTTPServer) handlePasswordLogin(c echo.Context) error {
	var body passwordLoginBody
	if err := c.Bind(&body); err != nil {
		return bindError(err)
	}

	password := []byte(body.Password)
	res, err := s.accounts.PasswordLogin(c.Request().Context(), body.UserName, password)
	common.WipeByteArray(password)
	s.metrics.AuthAttempt("password", err == nil)
	if err != nil {
		return err
	}

	s.setSessionCookie(c, res.SessionToken)
	return c.JSON(http.StatusOK, loginResponse{Status: "ok", Redirect: "/", Patient: toPatient(res.Patient)})
}

func (s *HTTPServer) startSession(c echo.Context, p *models.Patient, remember bool) error {
	res, err := s.accounts.IssueSession(c.Request().Context(), p, remember)
	if err != nil {
		return err
	}

	s.setSessionCookie(c, res.SessionToken)
	if res.RememberToken != "" {
		s.setRememberCookie(c, res.RememberToken)
	}
	return c.JSON(http.StatusOK, loginResponse{Status: "ok", Redirect: "/", Patient: toPatient(res.Patient)})
}

func (s *HTTPServer) handleLogout(c echo.Context) error {
	p := patientFrom(c)
	if err := s.accounts.Logout(c.Request().Context(), p.ID); err != nil {
		return err
	}
	s.clearAuthCookies(c)
	return c.JSON(http.StatusOK, statusResponse{Status: "ok", Redirect: "/accounts/login"})
}

func (s *HTTPServer) handleMe(c echo.Context) error {
	return c.JSON(http.StatusOK, toPatient(patientFrom(c)))
}
