package pushbridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Permission modes understood by StaticPermissions.
const (
	PermissionModeGrant         = "grant"
	PermissionModeDeny          = "deny"
	PermissionModeProvisional   = "provisional"
	PermissionModeNeverAskAgain = "never_ask_again"
)

// StaticPermissions answers every request with a configured mode.
// Provisional is an iOS notion; on Android it is not an explicit grant.
type StaticPermissions struct {
	Mode string
}

func (s StaticPermissions) RequestAuthorization(ctx context.Context) (AuthorizationStatus, error) {
	if err := ctx.Err(); err != nil {
		return AuthorizationNotDetermined, err
	}
	switch s.Mode {
	case PermissionModeGrant:
		return AuthorizationAuthorized, nil
	case PermissionModeProvisional:
		return AuthorizationProvisional, nil
	case PermissionModeDeny, PermissionModeNeverAskAgain:
		return AuthorizationDenied, nil
	}
	return AuthorizationNotDetermined, fmt.Errorf("unknown permission mode %q", s.Mode)
}

func (s StaticPermissions) Request(ctx context.Context, _ string) (PermissionResult, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch s.Mode {
	case PermissionModeGrant:
		return PermissionGranted, nil
	case PermissionModeDeny, PermissionModeProvisional:
		return PermissionDenied, nil
	case PermissionModeNeverAskAgain:
		return PermissionNeverAskAgain, nil
	}
	return "", fmt.Errorf("unknown permission mode %q", s.Mode)
}

// PromptPermissions asks the user on a terminal. Answers other than y/yes
// deny.
type PromptPermissions struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// NewPromptPermissions creates a PromptPermissions. Pass the same
// *bufio.Reader used by any other consumer of in so buffered input is not lost.
func NewPromptPermissions(in io.Reader, out io.Writer) *PromptPermissions {
	br, ok := in.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(in)
	}
	return &PromptPermissions{in: br, out: out}
}

func (p *PromptPermissions) RequestAuthorization(ctx context.Context) (AuthorizationStatus, error) {
	yes, err := p.ask(ctx, "Allow notifications? [y/N]: ")
	if err != nil {
		return AuthorizationNotDetermined, err
	}
	if yes {
		return AuthorizationAuthorized, nil
	}
	return AuthorizationDenied, nil
}

func (p *PromptPermissions) Request(ctx context.Context, permission string) (PermissionResult, error) {
	yes, err := p.ask(ctx, fmt.Sprintf("Grant %s? [y/N]: ", permission))
	if err != nil {
		return "", err
	}
	if yes {
		return PermissionGranted, nil
	}
	return PermissionDenied, nil
}

func (p *PromptPermissions) ask(ctx context.Context, prompt string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := fmt.Fprint(p.out, prompt); err != nil {
		return false, fmt.Errorf("writing prompt: %w", err)
	}
	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("reading answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
