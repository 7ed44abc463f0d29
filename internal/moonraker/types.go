package moonraker

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// JSON-RPC methods and notifications used by moonterm.
const (
	MethodIdentify         = "server.connection.identify"
	MethodSubscribe        = "printer.objects.subscribe"
	MethodQuery            = "printer.objects.query"
	MethodGCodeScript      = "printer.gcode.script"
	MethodGCodeHelp        = "printer.gcode.help"
	MethodPrintStart       = "printer.print.start"
	MethodPrintPause       = "printer.print.pause"
	MethodPrintResume      = "printer.print.resume"
	MethodPrintCancel      = "printer.print.cancel"
	MethodFilesList        = "server.files.list"
	MethodFilesMetadata    = "server.files.metadata"
	NotifyStatusUpdate     = "notify_status_update"
	NotifyGCodeResponse    = "notify_gcode_response"
	NotifyKlippyReady      = "notify_klippy_ready"
	NotifyKlippyShutdown   = "notify_klippy_shutdown"
	NotifyKlippyDisconnect = "notify_klippy_disconnected"
)

// SubscribedObjects lists the printer objects moonterm mirrors. A nil field list
// subscribes to every field of the object.
var SubscribedObjects = map[string][]string{
	"toolhead":       {"position", "homed_axes"},
	"extruder":       {"temperature", "target", "power"},
	"heater_bed":     {"temperature", "target", "power"},
	"print_stats":    {"state", "filename", "total_duration", "print_duration", "filament_used", "message"},
	"display_status": {"progress", "message"},
	"virtual_sdcard": {"progress", "is_active", "file_path"},
	"gcode_move":     {"speed_factor", "extrude_factor"},
}

// Request is an outgoing JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      any    `json:"id,omitempty"`
}

// NewRequest builds a request with the given correlation id.
func NewRequest(method string, params any, id any) Request {
	return Request{JSONRPC: "2.0", Method: method, Params: params, ID: id}
}

// Message is any incoming JSON-RPC frame: a response (ID set) or a notification
// (Method set).
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// ParseMessage decodes a frame. A frame that is neither a response nor a
// notification is a protocol error.
func ParseMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, &ProtocolError{Reason: "decode frame", Err: err}
	}
	if msg.Method == "" && len(msg.ID) == 0 {
		return Message{}, &ProtocolError{Reason: "frame has neither method nor id"}
	}
	return msg, nil
}

// IsNotification reports whether the message is a server push.
func (m Message) IsNotification() bool {
	return m.Method != "" && len(m.ID) == 0
}

// IDString returns the id as text, unquoting string ids.
func (m Message) IDString() string {
	if len(m.ID) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.ID, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(m.ID))
}

// Status is a set of printer objects keyed by name. In notifications only the
// changed fields of each object are present.
type Status map[string]json.RawMessage

// StatusParams extracts the status object from notify_status_update params,
// which are encoded as [status, eventtime].
func StatusParams(params json.RawMessage) (Status, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(params, &raw); err != nil {
		return nil, &ProtocolError{Reason: "status params", Err: err}
	}
	if len(raw) == 0 {
		return nil, &ProtocolError{Reason: "status params empty"}
	}
	var status Status
	if err := json.Unmarshal(raw[0], &status); err != nil {
		return nil, &ProtocolError{Reason: "status object", Err: err}
	}
	return status, nil
}

// SubscribeResult is the response to printer.objects.subscribe and
// printer.objects.query.
type SubscribeResult struct {
	EventTime float64 `json:"eventtime"`
	Status    Status  `json:"status"`
}

// GCodeParams extracts console lines from notify_gcode_response params.
func GCodeParams(params json.RawMessage) ([]string, error) {
	var lines []string
	if err := json.Unmarshal(params, &lines); err != nil {
		return nil, &ProtocolError{Reason: "gcode response params", Err: err}
	}
	return lines, nil
}

// Printer object payloads. Pointer fields distinguish "not reported" from zero.

// PrintStats mirrors the print_stats object.
type PrintStats struct {
	State         *string  `json:"state"`
	Filename      *string  `json:"filename"`
	TotalDuration *float64 `json:"total_duration"`
	PrintDuration *float64 `json:"print_duration"`
	FilamentUsed  *float64 `json:"filament_used"`
	Message       *string  `json:"message"`
}

// DisplayStatus mirrors the display_status object.
type DisplayStatus struct {
	Progress *float64 `json:"progress"`
	Message  *string  `json:"message"`
}

// VirtualSDCard mirrors the virtual_sdcard object.
type VirtualSDCard struct {
	Progress *float64 `json:"progress"`
	IsActive *bool    `json:"is_active"`
	FilePath *string  `json:"file_path"`
}

// Toolhead mirrors the toolhead object.
type Toolhead struct {
	Position  []float64 `json:"position"`
	HomedAxes *string   `json:"homed_axes"`
}

// Heater mirrors extruder and heater_bed.
type Heater struct {
	Temperature *float64 `json:"temperature"`
	Target      *float64 `json:"target"`
	Power       *float64 `json:"power"`
}

// GCodeMove mirrors the gcode_move object.
type GCodeMove struct {
	SpeedFactor   *float64 `json:"speed_factor"`
	ExtrudeFactor *float64 `json:"extrude_factor"`
}

// Decode unmarshals the named object into dest. It returns false when the object
// is absent from the status.
func (s Status) Decode(name string, dest any) (bool, error) {
	raw, ok := s[name]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, &ProtocolError{Reason: fmt.Sprintf("object %s", name), Err: err}
	}
	return true, nil
}

// FileInfo is one entry of server.files.list.
type FileInfo struct {
	Path        string  `json:"path"`
	Filename    string  `json:"filename"`
	Modified    float64 `json:"modified"`
	Size        int64   `json:"size"`
	Permissions string  `json:"permissions"`
}

// Name returns the path relative to the gcodes root.
func (f FileInfo) Name() string {
	if f.Path != "" {
		return f.Path
	}
	return f.Filename
}

// ModTime converts the Unix float timestamp.
func (f FileInfo) ModTime() time.Time {
	sec := int64(f.Modified)
	nsec := int64((f.Modified - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// DecodeFiles decodes a server.files.list result.
func DecodeFiles(raw json.RawMessage) ([]FileInfo, error) {
	var files []FileInfo
	if err := json.Unmarshal(raw, &files); err != nil {
		return nil, &ProtocolError{Reason: "file list", Err: err}
	}
	return files, nil
}

// Metadata is the subset of server.files.metadata moonterm displays.
type Metadata struct {
	Filename           string   `json:"filename"`
	Size               int64    `json:"size"`
	Modified           float64  `json:"modified"`
	Slicer             string   `json:"slicer"`
	SlicerVersion      string   `json:"slicer_version"`
	LayerHeight        *float64 `json:"layer_height"`
	FirstLayerHeight   *float64 `json:"first_layer_height"`
	ObjectHeight       *float64 `json:"object_height"`
	FilamentTotal      *float64 `json:"filament_total"`
	EstimatedTime      *float64 `json:"estimated_time"`
	FirstLayerBedTemp  *float64 `json:"first_layer_bed_temp"`
	FirstLayerExtrTemp *float64 `json:"first_layer_extr_temp"`
}

// DecodeMetadata decodes a server.files.metadata result.
func DecodeMetadata(raw json.RawMessage) (Metadata, error) {
	var md Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return Metadata{}, &ProtocolError{Reason: "file metadata", Err: err}
	}
	return md, nil
}

const macroPrefix = "gcode_macro "

// DecodeMacros extracts macro names from a printer.objects.query result for the
// configfile object. Names are returned sorted and upper-cased as Klipper
// registers them.
func DecodeMacros(raw json.RawMessage) ([]string, error) {
	var result struct {
		Status struct {
			ConfigFile struct {
				Settings map[string]json.RawMessage `json:"settings"`
			} `json:"configfile"`
		} `json:"status"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &ProtocolError{Reason: "configfile query", Err: err}
	}
	var macros []string
	for key := range result.Status.ConfigFile.Settings {
		if name, ok := strings.CutPrefix(key, macroPrefix); ok && name != "" {
			macros = append(macros, strings.ToUpper(name))
		}
	}
	sort.Strings(macros)
	return macros, nil
}
