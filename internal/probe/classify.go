package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// Classify maps a transport error onto a failure class and a detail string.
// ctx is the probe's own context, used to tell its deadline apart from an
// external cancellation.
func Classify(ctx context.Context, err error) (class, detail string) {
	detail = err.Error()
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		detail = ue.Err.Error()
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout, detail
	}
	if errors.Is(err, context.Canceled) {
		return ErrCanceled, detail
	}

	var de *net.DNSError
	if errors.As(err, &de) {
		return ErrDNS, dnsClass(de) + ": " + de.Name
	}

	var (
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidCert x509.CertificateInvalidError
		verifyErr   *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
	)
	switch {
	case errors.As(err, &verifyErr), errors.As(err, &unknownAuth), errors.As(err, &hostErr),
		errors.As(err, &invalidCert), errors.As(err, &recordErr):
		return ErrTLS, detail
	}
	if strings.Contains(detail, "tls: ") {
		return ErrTLS, detail
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrConnectionRefused, detail
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return ErrConnectionReset, detail
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrTimeout, detail
	}
	if strings.Contains(detail, "stopped after") && strings.Contains(detail, "redirects") {
		return ErrRedirect, detail
	}
	return ErrConnection, detail
}

// dnsClass names the resolver outcome the same way for every probe:
// NXDOMAIN, SERVFAIL_or_TIMEOUT or RESOLVER_ERROR.
func dnsClass(de *net.DNSError) string {
	switch {
	case de.IsNotFound:
		return "NXDOMAIN"
	case de.IsTemporary || de.Timeout():
		return "SERVFAIL_or_TIMEOUT"
	default:
		return "RESOLVER_ERROR"
	}
}
