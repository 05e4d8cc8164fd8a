package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
	apperrors "github.com/eidos-exchange/eidos/eidos-yield/pkg/errors"
)

func TestProducer_Publish(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"id":1}` {
			return errors.New("unexpected payload " + string(val))
		}
		return nil
	})
	p := NewProducerWithClient(sp)

	err := p.Publish(context.Background(), model.TopicBridgeEvents, "0xabc", []byte(`{"id":1}`))
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestProducerConfig(t *testing.T) {
	cfg := (&ProducerConfig{ClientID: "eidos-yield"}).saramaConfig()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Producer.Idempotent)
	assert.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	assert.Equal(t, 3, cfg.Producer.Retry.Max)

	cfg = (&ProducerConfig{MaxRetries: 7}).saramaConfig()
	assert.Equal(t, 7, cfg.Producer.Retry.Max)
}

func TestProducer_PublishFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	p := NewProducerWithClient(sp)

	err := p.Publish(context.Background(), model.TopicYieldEvents, "k", []byte("{}"))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestProducer_Closed(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	p := NewProducerWithClient(sp)
	require.NoError(t, p.Close())
	// 重复关闭无副作用
	require.NoError(t, p.Close())

	err := p.Publish(context.Background(), model.TopicYieldEvents, "k", []byte("{}"))
	assert.ErrorIs(t, err, ErrProducerClosed)
}

func TestProducer_CanceledContext(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	p := NewProducerWithClient(sp)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Publish(ctx, model.TopicYieldEvents, "k", []byte("{}"))
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, p.Close())
}

type fakeCreditor struct {
	deposits []*model.ExternalDeposit
	seen     map[string]bool
	err      error
}

func (f *fakeCreditor) CreditExternal(_ context.Context, dep *model.ExternalDeposit) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[dep.DepositID] {
		return false, nil
	}
	f.seen[dep.DepositID] = true
	f.deposits = append(f.deposits, dep)
	return true, nil
}

func depositMessage(value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: model.TopicDeposits, Value: []byte(value), Offset: 7}
}

func TestDepositHandler_Credits(t *testing.T) {
	creditor := &fakeCreditor{}
	h := NewDepositHandler(creditor)

	msg := depositMessage(`{"deposit_id":"dep-1","wallet":"0x00000000000000000000000000000000000000b1","token":"0x00000000000000000000000000000000000000d1","amount":"1500"}`)
	require.NoError(t, h.Handle(context.Background(), msg))
	require.NoError(t, h.Handle(context.Background(), msg))

	require.Len(t, creditor.deposits, 1)
	assert.Equal(t, "dep-1", creditor.deposits[0].DepositID)
	assert.True(t, creditor.deposits[0].Amount.Equal(decimal.NewFromInt(1500)))
}

func TestDepositHandler_SkipsMalformed(t *testing.T) {
	creditor := &fakeCreditor{}
	h := NewDepositHandler(creditor)

	assert.NoError(t, h.Handle(context.Background(), depositMessage(`not json`)))
	assert.Empty(t, creditor.deposits)
}

func TestDepositHandler_RejectedIsSkipped(t *testing.T) {
	h := NewDepositHandler(&fakeCreditor{err: apperrors.ErrInvalidAmount})
	assert.NoError(t, h.Handle(context.Background(), depositMessage(`{"deposit_id":"dep-2"}`)))
}

func TestDepositHandler_InternalErrorReturned(t *testing.T) {
	h := NewDepositHandler(&fakeCreditor{err: errors.New("db down")})
	err := h.Handle(context.Background(), depositMessage(`{"deposit_id":"dep-3"}`))
	assert.Error(t, err)
}
