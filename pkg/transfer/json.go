package transfer

import (
	"encoding/json"
	"fmt"
)

// FrameCodec turns control frames into text messages and back.
type FrameCodec interface {
	Encode(frame ControlFrame) (string, error)
	Decode(data []byte) (ControlFrame, error)
	Name() string
}

type JSONCodec struct{}

func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// jsonFrame uses pointers so that zero values which matter on the wire, such
// as a size of 0 or empty text, are still emitted.
type jsonFrame struct {
	Type    FrameType `json:"type"`
	Name    *string   `json:"name,omitempty"`
	Size    *int64    `json:"size,omitempty"`
	Count   *int      `json:"count,omitempty"`
	Content *string   `json:"content,omitempty"`
	Message *string   `json:"message,omitempty"`
}

func (JSONCodec) Encode(frame ControlFrame) (string, error) {
	out := jsonFrame{Type: frame.Type}
	switch frame.Type {
	case FrameFileCount:
		out.Count = &frame.Count
	case FrameFile:
		out.Name = &frame.Name
		out.Size = &frame.Size
	case FrameText:
		out.Content = &frame.Content
	case FrameError:
		out.Message = &frame.Message
	case FrameFileEnd, FrameAllFilesEnd, FrameAllFilesReceived, FrameSigint:
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFrame, frame.Type)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s frame: %w", frame.Type, err)
	}
	return string(data), nil
}

func (JSONCodec) Decode(data []byte) (ControlFrame, error) {
	var in jsonFrame
	if err := json.Unmarshal(data, &in); err != nil {
		return ControlFrame{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	frame := ControlFrame{Type: in.Type}
	switch in.Type {
	case FrameFileCount:
		if in.Count == nil || *in.Count < 0 {
			return ControlFrame{}, fmt.Errorf("%w: file-count without a valid count", ErrProtocol)
		}
		frame.Count = *in.Count
	case FrameFile:
		if in.Name == nil || *in.Name == "" || in.Size == nil || *in.Size < 0 {
			return ControlFrame{}, fmt.Errorf("%w: file frame needs a name and a non-negative size", ErrProtocol)
		}
		frame.Name, frame.Size = *in.Name, *in.Size
	case FrameText:
		if in.Content == nil {
			return ControlFrame{}, fmt.Errorf("%w: text frame without content", ErrProtocol)
		}
		frame.Content = *in.Content
	case FrameError:
		if in.Message != nil {
			frame.Message = *in.Message
		}
	case FrameFileEnd, FrameAllFilesEnd, FrameAllFilesReceived, FrameSigint:
	default:
		return ControlFrame{}, fmt.Errorf("%w: %q", ErrUnknownFrame, in.Type)
	}
	return frame, nil
}

func (JSONCodec) Name() string {
	return "json"
}
