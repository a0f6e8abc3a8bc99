package brick

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/nerrad567/brickd/internal/action"
)

// Action names handled by RegisterActions.
const (
	ActionGetDevices       = "getDevices"
	ActionReleaseResources = "releaseResources"
)

// devicesMessage answers getDevices.
type devicesMessage struct {
	MsgTyp  string       `json:"msgTyp"`
	Devices []DeviceInfo `json:"devices"`
}

// releasedMessage is broadcast after releaseResources.
type releasedMessage struct {
	MsgTyp string `json:"msgTyp"`
	Count  int    `json:"count"`
}

// RegisterActions adds the device actions to d. Both run on the
// dispatcher's worker so they are ordered with every other hardware action.
//
//	{"action":"getDevices"}        -> {"msgTyp":"Devices","devices":[...]} to the caller
//	{"action":"releaseResources"}  -> {"msgTyp":"ResourcesReleased","count":n} to everyone
//
// releaseResources is refused with script-already-running while a script
// holds the devices.
func (b *Brick) RegisterActions(d *action.Dispatcher) {
	d.RegisterHandler(action.NewHandler(ActionGetDevices, true, b.handleGetDevices))
	d.RegisterHandler(action.NewHandler(ActionReleaseResources, true, b.handleRelease))
}

func (b *Brick) handleGetDevices(_ context.Context, msg *action.Message, d *action.Dispatcher) error {
	content, err := json.Marshal(devicesMessage{MsgTyp: "Devices", Devices: b.Devices()})
	if err != nil {
		return err
	}
	d.SendBackMessage(msg.ConnectionID(), string(content))
	return nil
}

func (b *Brick) handleRelease(_ context.Context, _ *action.Message, d *action.Dispatcher) error {
	if s := d.Scripts(); s != nil && s.IsScriptRunning() {
		return action.NewError(action.KindScriptAlreadyRunning, true)
	}
	content, err := json.Marshal(releasedMessage{MsgTyp: "ResourcesReleased", Count: b.ReleaseResources()})
	if err != nil {
		return err
	}
	d.SendBackMessage(uuid.Nil, string(content))
	return nil
}
