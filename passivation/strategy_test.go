package passivation

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luweizheng/xoscar/internal/duration"
)

func TestStrategy(t *testing.T) {
	timeStrategy := NewTimeBasedStrategy(5 * time.Minute)
	require.Implements(t, (*Strategy)(nil), timeStrategy)
	require.Equal(t, 5*time.Minute, timeStrategy.Timeout())
	require.Equal(t, fmt.Sprintf("Timed-Based of Duration=[%s]", duration.Format(5*time.Minute)), timeStrategy.String())

	messageCountStrategy := NewMessageCountBasedStrategy(2)
	require.Implements(t, (*Strategy)(nil), messageCountStrategy)
	require.EqualValues(t, 2, messageCountStrategy.MaxMessages())

	longlivedStrategy := NewLongLivedStrategy()
	require.Implements(t, (*Strategy)(nil), longlivedStrategy)
	require.Equal(t, "Long Lived", longlivedStrategy.String())
}
