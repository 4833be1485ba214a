package flowfakes

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spenselabs/partnersdk/flow"
)

var _ flow.Prompter = (*FakePrompter)(nil)

// FakePrompter scripts the host-side screens: PIN entries are consumed from a
// queue and every interaction is recorded.
type FakePrompter struct {
	lock sync.Mutex

	// PinQueue is consumed one entry per PromptPIN call.
	PinQueue []string
	PinErr   error
	RelayErr error

	Prompts         []flow.PinPrompt
	RelayRecipients []string
	RelayBodies     []string
	LockNotices     []time.Time
	BindingFailures int

	// OnRelay runs inside RelayAuthCode, letting tests cancel mid-flow.
	OnRelay func()
}

func (fp *FakePrompter) RelayAuthCode(_ context.Context, recipient, body string) error {
	fp.lock.Lock()
	fp.RelayRecipients = append(fp.RelayRecipients, recipient)
	fp.RelayBodies = append(fp.RelayBodies, body)
	hook := fp.OnRelay
	err := fp.RelayErr
	fp.lock.Unlock()

	if hook != nil {
		hook()
	}
	return err
}

func (fp *FakePrompter) PromptPIN(_ context.Context, prompt flow.PinPrompt) (string, error) {
	fp.lock.Lock()
	defer fp.lock.Unlock()
	fp.Prompts = append(fp.Prompts, prompt)
	if fp.PinErr != nil {
		return "", fp.PinErr
	}
	if len(fp.PinQueue) == 0 {
		return "", errors.New("fake prompter: pin queue exhausted")
	}
	next := fp.PinQueue[0]
	fp.PinQueue = fp.PinQueue[1:]
	return next, nil
}

func (fp *FakePrompter) NotifyPinLocked(until time.Time) {
	fp.lock.Lock()
	defer fp.lock.Unlock()
	fp.LockNotices = append(fp.LockNotices, until)
}

func (fp *FakePrompter) NotifyBindingFailed() {
	fp.lock.Lock()
	defer fp.lock.Unlock()
	fp.BindingFailures++
}
