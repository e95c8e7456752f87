package crypto

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/clearsign"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
)

func clearsigned(t *testing.T, signer *openpgp.Entity, text string) string {
	t.Helper()
	var buf bytes.Buffer
	w, err := clearsign.Encode(&buf, signer.PrivateKey, nil)
	require.NoError(t, err)
	_, err = w.Write([]byte(text))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.String()
}

func TestPGPAgent_VerifiesClearsignedBody(t *testing.T) {
	entity, err := openpgp.NewEntity("Jane Doe", "", "jane@example.com", nil)
	require.NoError(t, err)
	agent := NewPGPAgent(openpgp.EntityList{entity}, logger.NewNopLogger())

	msg := &models.Message{AccountID: "acc_1", UID: 1, BodyText: clearsigned(t, entity, "Meet at noon.\n")}
	require.True(t, agent.NeedsVerification(msg))

	result, err := agent.Verify(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.Equal(t, "Jane Doe <jane@example.com>", result.Signer)
}

func TestPGPAgent_RejectsTamperedBody(t *testing.T) {
	entity, err := openpgp.NewEntity("Jane Doe", "", "jane@example.com", nil)
	require.NoError(t, err)
	agent := NewPGPAgent(openpgp.EntityList{entity}, logger.NewNopLogger())

	body := strings.Replace(clearsigned(t, entity, "Meet at noon.\n"), "noon", "midnight", 1)
	_, err = agent.Verify(context.Background(), &models.Message{BodyText: body})
	assert.Error(t, err)
}

func TestPGPAgent_PlainMessage(t *testing.T) {
	agent := NewPGPAgent(nil, logger.NewNopLogger())
	msg := &models.Message{BodyText: "hello"}

	assert.False(t, agent.NeedsVerification(msg))
	_, err := agent.Verify(context.Background(), msg)
	assert.ErrorIs(t, err, ErrNoSignedBlock)
}

func TestNewAgent_WithoutKeyring(t *testing.T) {
	agent, err := NewAgent(&config.CryptoConfig{}, logger.NewNopLogger())
	require.NoError(t, err)
	assert.False(t, agent.NeedsVerification(&models.Message{BodyText: string(clearsignHeader)}))

	_, err = NewAgent(&config.CryptoConfig{KeyringPath: "/nonexistent/keyring.asc"}, logger.NewNopLogger())
	assert.Error(t, err)
}
