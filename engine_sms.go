package kadmin

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/kadmin/kadmin/internal"
	"github.com/kadmin/kadmin/internal/stores"
)

const smsCodeDigits = 6

// SendSMSCode issues a 6-digit verification code for phone, valid for
// the configured TTL. A resend overwrites the previous code, so at most
// one code per phone is live. The send is counted against the ip and
// phone budgets only after the code is stored; a throttled attempt
// returns a rate error and touches no counter.
//
// The generated code is returned to the caller. Handlers echo it in the
// response only when [SMSConfig.EchoCode] is on; production wiring hands
// it to the SMS gateway instead.
func (e *Engine) SendSMSCode(ctx context.Context, phone, ip string) (string, error) {
	if e == nil || e.smsCodes == nil {
		return "", ErrEngineNotReady
	}

	if err := e.limiter.Check(ctx, ip, phone); err != nil {
		e.metricInc(MetricSMSRateLimited)
		return "", err
	}

	code, err := internal.NewSMSCode(smsCodeDigits)
	if err != nil {
		return "", err
	}

	if err := e.smsCodes.Save(ctx, phone, code, e.config.SMS.CodeTTL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.limiter.Record(ctx, ip, phone); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricSMSSent)
	e.logger.Info("sms code issued", "phone", phone, "clientIp", ip)
	return code, nil
}

// CheckSMSRate runs the throttling checks for an ip+phone pair without
// recording anything. The rate-limit guard calls this ahead of the send
// handler so rejections carry the retry countdown.
func (e *Engine) CheckSMSRate(ctx context.Context, ip, phone string) error {
	if e == nil || e.limiter == nil {
		return ErrEngineNotReady
	}
	return e.limiter.Check(ctx, ip, phone)
}

// VerifySMSCode checks the submitted code against the stored one without
// consuming it. Registration consumes the code; this is for guards that
// must validate before the handler runs.
func (e *Engine) VerifySMSCode(ctx context.Context, phone, code string) error {
	if e == nil || e.smsCodes == nil {
		return ErrEngineNotReady
	}

	record, err := e.smsCodes.Get(ctx, phone)
	if err != nil {
		if errors.Is(err, stores.ErrSMSCodeNotFound) {
			return ErrSMSCodeMismatch
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if subtle.ConstantTimeCompare([]byte(record.Code), []byte(code)) != 1 {
		return ErrSMSCodeMismatch
	}
	return nil
}
