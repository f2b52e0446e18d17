package identity

import (
	"context"
	"crypto/subtle"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/patientvault/internal/cryptox"
	"github.com/google/uuid"
)

// StatusOK is the only status that signals success.
const StatusOK = "OK"

// OTPRequest is the provider's answer to a code request.
type OTPRequest struct {
	Status  string
	TxnID   string
	Message string
	// DebugOTP carries the code in development setups only.
	DebugOTP string
}

// OTPVerification is the provider's answer to a code check.
type OTPVerification struct {
	Status  string
	Message string
}

// Provider issues and verifies one-time codes for an identifier.
// A returned error means the provider could not be reached; a non-OK
// status is a definitive answer.
type Provider interface {
	RequestOTP(ctx context.Context, id string) (*OTPRequest, error)
	VerifyOTP(ctx context.Context, id, txnID, code string) (*OTPVerification, error)
}

const (
	otpPurpose = "otp"

	// OTPValidity bounds how long an issued code is accepted.
	OTPValidity = 5 * time.Minute
)

// StubProvider simulates a provider without any state: the code is derived
// from the identifier and transaction id under a secret. The transaction id
// carries its issue time, so codes expire after OTPValidity. Within that
// window a code is not single-use: a captured (txn id, code) pair verifies
// again until it expires.
type StubProvider struct {
	secret []byte
	debug  bool
	now    func() time.Time
}

// NewStubProvider returns a stateless provider. With debug set, issued codes
// are echoed back in OTPRequest.DebugOTP.
func NewStubProvider(secret string, debug bool) *StubProvider {
	return &StubProvider{secret: []byte(secret), debug: debug, now: time.Now}
}

// newTxnID returns "<unix seconds>.<uuid>".
func (p *StubProvider) newTxnID() string {
	return strconv.FormatInt(p.now().Unix(), 10) + "." + uuid.NewString()
}

// expired reports whether txnID is malformed or older than OTPValidity.
func (p *StubProvider) expired(txnID string) bool {
	ts, _, ok := strings.Cut(txnID, ".")
	if !ok {
		return true
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return true
	}
	age := p.now().Sub(time.Unix(sec, 0))
	return age < 0 || age > OTPValidity
}

func (p *StubProvider) code(id, txnID string) string {
	return cryptox.KeyedDigits(p.secret, otpPurpose, id+"|"+txnID, 6)
}

func (p *StubProvider) RequestOTP(ctx context.Context, id string) (*OTPRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return &OTPRequest{Status: "ERROR", Message: "identifier is required"}, nil
	}

	txnID := p.newTxnID()
	res := &OTPRequest{Status: StatusOK, TxnID: txnID, Message: "OTP sent"}
	if p.debug {
		res.DebugOTP = p.code(id, txnID)
	}
	return res, nil
}

func (p *StubProvider) VerifyOTP(ctx context.Context, id, txnID, code string) (*OTPVerification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if txnID == "" || code == "" {
		return &OTPVerification{Status: "ERROR", Message: "transaction id and code are required"}, nil
	}

	if p.expired(txnID) {
		return &OTPVerification{Status: "EXPIRED", Message: "OTP expired, request a new one"}, nil
	}

	want := p.code(id, txnID)
	if subtle.ConstantTimeCompare([]byte(want), []byte(strings.TrimSpace(code))) != 1 {
		return &OTPVerification{Status: "FAILED", Message: "invalid OTP"}, nil
	}
	return &OTPVerification{Status: StatusOK, Message: "verified"}, nil
}
