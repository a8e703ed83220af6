package passivation

import (
	"fmt"
	"time"

	"github.com/luweizheng/xoscar/internal/duration"
)

// Strategy decides when a kernel should evict an idle actor instance.
// A Kernel looks up the Strategy registered for an actor's class (see
// Kernel.SetClassPassivation) and checks it on its passivation sweep.
type Strategy interface {
	fmt.Stringer
	Name() string
}

// TimeBasedStrategy evicts an actor once it has gone timeout without
// receiving a message.
type TimeBasedStrategy struct {
	timeout time.Duration
}

var _ Strategy = (*TimeBasedStrategy)(nil)

func NewTimeBasedStrategy(timeout time.Duration) *TimeBasedStrategy {
	return &TimeBasedStrategy{timeout: timeout}
}

func (t *TimeBasedStrategy) Timeout() time.Duration {
	return t.timeout
}

func (t *TimeBasedStrategy) String() string {
	return fmt.Sprintf("Timed-Based of Duration=[%s]", duration.Format(t.timeout))
}

func (t *TimeBasedStrategy) Name() string {
	return "TimeBased"
}

// MessagesCountBasedStrategy evicts an actor once it has processed
// maxMessages messages since it was created, regardless of idle time.
type MessagesCountBasedStrategy struct {
	maxMessages int
}

var _ Strategy = (*MessagesCountBasedStrategy)(nil)

func NewMessageCountBasedStrategy(maxMessages int) *MessagesCountBasedStrategy {
	return &MessagesCountBasedStrategy{maxMessages: maxMessages}
}

func (m *MessagesCountBasedStrategy) MaxMessages() int {
	return m.maxMessages
}

func (m *MessagesCountBasedStrategy) String() string {
	return fmt.Sprintf("Messages Count-Based with maximum of %d", m.maxMessages)
}

func (m *MessagesCountBasedStrategy) Name() string {
	return "MessagesCountBased"
}

// LongLivedStrategy never evicts; it is the default for a class with no
// passivation configured.
type LongLivedStrategy struct{}

var _ Strategy = (*LongLivedStrategy)(nil)

func NewLongLivedStrategy() *LongLivedStrategy {
	return &LongLivedStrategy{}
}

func (l *LongLivedStrategy) String() string {
	return "Long Lived"
}

func (l *LongLivedStrategy) Name() string {
	return "LongLived"
}
