package widgettoken

import (
	"context"
	"time"

	"github.com/BotCoder254/calemly-go-sdk/internal/api"
)

// APIIssuer adapts *api.Client to the Issuer interface.
type APIIssuer struct {
	Client *api.Client
}

func (a APIIssuer) IssueWidgetToken(ctx context.Context) (string, time.Time, error) {
	token, err := a.Client.IssueWidgetToken(ctx)
	if err != nil {
		return "", time.Time{}, err
	}
	return token.Token, token.ExpiresAt, nil
}
