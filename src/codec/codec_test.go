package codec

import (
	"encoding/json"
	"testing"

	"trading-relay/src/helpers"
	"trading-relay/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRequests(t *testing.T) {
	ticks := NewTicksSubscribe("R_100")
	ticks.SetReqID(7)
	data, err := Encode(ticks)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ticks":"R_100","subscribe":1,"req_id":7}`, string(data))

	data, err = Encode(NewPing())
	require.NoError(t, err)
	assert.JSONEq(t, `{"ping":1}`, string(data))

	sell := &SellRequest{Sell: 123456}
	sell.SetReqID(9)
	data, err = Encode(sell)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sell":123456,"price":0,"req_id":9}`, string(data))

	prop := &ProposalRequest{
		Proposal: 1, Amount: 10, Basis: "stake", ContractType: "CALL",
		Currency: "USD", Duration: 5, DurationUnit: "t", Symbol: "R_100",
	}
	prop.SetReqID(3)
	data, err = Encode(prop)
	require.NoError(t, err)
	assert.JSONEq(t, `{"proposal":1,"amount":10,"basis":"stake","contract_type":"CALL",
		"currency":"USD","duration":5,"duration_unit":"t","symbol":"R_100","req_id":3}`, string(data))
}

func TestAuthorizeRequestRedactsGoString(t *testing.T) {
	req := NewAuthorize("a1-secret")
	assert.NotContains(t, req.GoString(), "a1-secret")
}

func TestDecodeTick(t *testing.T) {
	frame, err := Decode([]byte(`{
		"msg_type":"tick",
		"echo_req":{"ticks":"R_100","subscribe":1,"req_id":4},
		"subscription":{"id":"abc-123"},
		"tick":{"symbol":"R_100","quote":1234.56,"epoch":1700000000,"id":"abc-123","pip_size":2}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "tick", frame.MsgType)
	assert.Equal(t, uint64(4), frame.ReqID, "req_id recovered from echo_req")
	require.NotNil(t, frame.Subscription)
	assert.Equal(t, "abc-123", frame.Subscription.ID)

	tick, ok := frame.Body.(*Tick)
	require.True(t, ok)
	bid, ask := tick.Prices()
	assert.Equal(t, 1234.56, bid)
	assert.Equal(t, 1234.56, ask)
}

func TestDecodeAuthorize(t *testing.T) {
	frame, err := Decode([]byte(`{
		"msg_type":"authorize","req_id":1,
		"authorize":{"loginid":"VRTC1","balance":"10000.00","currency":"USD","fullname":"Jo","is_virtual":1,
			"account_list":[{"loginid":"VRTC1","currency":"USD","is_virtual":1},{"loginid":"CR9","currency":"USD","is_virtual":0}]}
	}`))
	require.NoError(t, err)

	auth := frame.Body.(*Authorize)
	assert.Equal(t, "VRTC1", auth.LoginID)
	assert.Equal(t, 10000.0, auth.Balance.Float())
	assert.True(t, bool(auth.IsVirtual))
	require.Len(t, auth.AccountList, 2)
	assert.False(t, bool(auth.AccountList[1].IsVirtual))
}

func TestDecodeErrorReply(t *testing.T) {
	frame, err := Decode([]byte(`{"msg_type":"authorize","req_id":2,"error":{"code":"InvalidToken","message":"The token is invalid."}}`))
	require.NoError(t, err)

	require.NotNil(t, frame.Error)
	msg, ok := frame.Body.(*ErrorMessage)
	require.True(t, ok)
	assert.Equal(t, "InvalidToken", msg.Code)
	assert.Equal(t, helpers.KindUpstream, helpers.KindOf(frame.Error.Err()))
}

func TestDecodeContractsForStringLimits(t *testing.T) {
	frame, err := Decode([]byte(`{"msg_type":"contracts_for","req_id":5,"contracts_for":{"available":[
		{"contract_type":"CALL","min_contract_measure":"0.35","max_contract_measure":"50000"}]}}`))
	require.NoError(t, err)
	cf := frame.Body.(*ContractsFor)
	require.Len(t, cf.Available, 1)
	assert.Equal(t, 0.35, cf.Available[0].MinContractMeasure.Float())
	assert.Equal(t, 50000.0, cf.Available[0].MaxContractMeasure.Float())
}

func TestDecodeUnknownKindIsGeneric(t *testing.T) {
	frame, err := Decode([]byte(`{"msg_type":"website_status","website_status":{"site_status":"up"}}`))
	require.NoError(t, err)
	g, ok := frame.Body.(*Generic)
	require.True(t, ok)
	assert.Equal(t, "website_status", g.Kind())
	assert.False(t, frame.IsReply())
}

func TestDecodeRejectsMalformed(t *testing.T) {
	for _, in := range []string{`not json`, `[]`, `{"foo":1}`, `{"msg_type":"tick","tick":"oops"}`} {
		_, err := Decode([]byte(in))
		require.Error(t, err, in)
		assert.Equal(t, helpers.KindDecode, helpers.KindOf(err), in)
	}
}

func TestEncodeEvent(t *testing.T) {
	data, err := EncodeEvent(models.MEvent{Type: models.EventBalance, Data: models.MBalanceUpdate{AccountID: "CR1", Balance: 12.5, Currency: "USD"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"balance","data":{"account_id":"CR1","balance":12.5,"currency":"USD"}}`, string(data))

	data, err = EncodeEvent(models.MEvent{Type: models.EventPing})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ping"}`, string(data))

	_, err = EncodeEvent(models.MEvent{})
	assert.Error(t, err)
}

func TestDecodeCommand(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{"command":" Subscribe ","symbols":["R_100"," R_50 "]}`))
	require.NoError(t, err)
	assert.Equal(t, "subscribe", cmd.Command)
	assert.Equal(t, []string{"R_100", "R_50"}, cmd.Symbols)

	_, err = DecodeCommand([]byte(`{"command":"subscribe"}`))
	assert.Equal(t, helpers.KindValidation, helpers.KindOf(err))

	_, err = DecodeCommand([]byte(`{"command":"explode","symbols":["x"]}`))
	assert.Equal(t, helpers.KindValidation, helpers.KindOf(err))
}

func TestDecodeEventFiltersTypes(t *testing.T) {
	evt, err := DecodeEvent([]byte(`{"type":"market_status","data":{"regime":"trending"}}`))
	require.NoError(t, err)
	assert.Equal(t, models.EventMarketStatus, evt.Type)
	assert.JSONEq(t, `{"regime":"trending"}`, string(evt.Data.(json.RawMessage)))

	_, err = DecodeEvent([]byte(`{"type":"positions","data":[]}`))
	assert.Error(t, err)
}
