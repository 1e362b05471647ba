package twilio

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redemption-api/internal/config"
	"github.com/go-redemption-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeAPI struct {
	params *twilioApi.CreateMessageParams
	err    error
}

func (f *fakeAPI) CreateMessage(p *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = p
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, f.err
}

func TestNotifier_Send_AttachesMedia(t *testing.T) {
	api := &fakeAPI{}
	n := NewNotifierWithAPI(api, "whatsapp:+14155238886")
	err := n.Send(context.Background(), domain.OutboundMessage{
		Phone: "+919876543210", Text: "hi", ImageURL: "https://cdn/qr.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "whatsapp:+919876543210", *api.params.To)
	assert.Equal(t, "whatsapp:+14155238886", *api.params.From)
	assert.Equal(t, []string{"https://cdn/qr.png"}, *api.params.MediaUrl)
}

func TestNotifier_Send_Error(t *testing.T) {
	n := NewNotifierWithAPI(&fakeAPI{err: errors.New("boom")}, "whatsapp:+1")
	assert.Error(t, n.Send(context.Background(), domain.OutboundMessage{Phone: "+1", Text: "x"}))
}

func TestNewNotifier_RequiresCredentials(t *testing.T) {
	_, err := NewNotifier(&config.Config{})
	assert.Error(t, err)
}
