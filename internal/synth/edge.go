package synth

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/subdub/subdub/internal/audio"
	"github.com/subdub/subdub/internal/resilience"
)

const (
	edgeEndpoint = "wss://speech.platform.bing.com/consumer/speech/synthesize/readaloud/edge/v1"
	edgeToken    = "6A5AA1D4EAFF4E9FB37E23D68491D6F4"
	edgeOrigin   = "chrome-extension://jdiccldimpdaibmpdkjnbmckianbfold"

	// The service streams raw PCM at the pipeline's working rate, so
	// no container decoding is needed on this path.
	edgeOutputFormat = "raw-24khz-16bit-mono-pcm"
	edgeSampleRate   = 24000
)

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&apos;",
	`"`, "&quot;",
)

// EdgeClient synthesizes speech over the Edge read-aloud websocket
// service. One connection is dialed per utterance; the service sends
// audio as binary frames until a turn.end message.
type EdgeClient struct {
	dialer *websocket.Dialer
}

// NewEdgeClient creates an Edge speech client.
func NewEdgeClient() *EdgeClient {
	return &EdgeClient{
		dialer: &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
		},
	}
}

// Name implements Synthesizer.
func (c *EdgeClient) Name() string { return "edge" }

// Synthesize implements Synthesizer. All network-level failures are
// marked retryable; the retry budget belongs to the caller.
func (c *EdgeClient) Synthesize(ctx context.Context, text, voice string) (*audio.Buffer, error) {
	connID := strings.ReplaceAll(uuid.New().String(), "-", "")
	url := fmt.Sprintf("%s?TrustedClientToken=%s&ConnectionId=%s", edgeEndpoint, edgeToken, connID)

	header := http.Header{}
	header.Set("Origin", edgeOrigin)

	conn, _, err := c.dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, resilience.NewRetryableError(fmt.Errorf("dial edge service: %w", err))
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}

	if err := conn.WriteMessage(websocket.TextMessage, speechConfigMessage()); err != nil {
		return nil, resilience.NewRetryableError(fmt.Errorf("send speech config: %w", err))
	}

	requestID := strings.ReplaceAll(uuid.New().String(), "-", "")
	if err := conn.WriteMessage(websocket.TextMessage, ssmlMessage(requestID, text, voice)); err != nil {
		return nil, resilience.NewRetryableError(fmt.Errorf("send ssml: %w", err))
	}

	var pcm []byte
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return nil, resilience.NewRetryableError(fmt.Errorf("read edge response: %w", err))
		}

		switch msgType {
		case websocket.TextMessage:
			if strings.Contains(string(data), "Path:turn.end") {
				if len(pcm) == 0 {
					return nil, ErrEmptyAudio
				}
				return audio.DecodePCM16(pcm, edgeSampleRate)
			}
		case websocket.BinaryMessage:
			payload, ok := audioPayload(data)
			if ok {
				pcm = append(pcm, payload...)
			}
		}
	}
}

// audioPayload strips the binary frame header: a 2-byte big-endian
// header length followed by the header text, then raw audio. Frames
// whose header is not an audio path carry metadata and are skipped.
func audioPayload(frame []byte) ([]byte, bool) {
	if len(frame) < 2 {
		return nil, false
	}
	headerLen := int(frame[0])<<8 | int(frame[1])
	if len(frame) < 2+headerLen {
		return nil, false
	}
	header := frame[2 : 2+headerLen]
	if !bytes.Contains(header, []byte("Path:audio")) {
		return nil, false
	}
	return frame[2+headerLen:], true
}

func timestamp() string {
	return time.Now().UTC().Format("Mon Jan 02 2006 15:04:05 GMT+0000 (Coordinated Universal Time)")
}

func speechConfigMessage() []byte {
	const config = `{"context":{"synthesis":{"audio":{"metadataoptions":{` +
		`"sentenceBoundaryEnabled":"false","wordBoundaryEnabled":"false"},` +
		`"outputFormat":"` + edgeOutputFormat + `"}}}}`
	msg := "X-Timestamp:" + timestamp() + "\r\n" +
		"Content-Type:application/json; charset=utf-8\r\n" +
		"Path:speech.config\r\n\r\n" +
		config
	return []byte(msg)
}

func ssmlMessage(requestID, text, voice string) []byte {
	ssml := fmt.Sprintf(
		`<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='en-US'>`+
			`<voice name='%s'>%s</voice></speak>`,
		voice, xmlEscaper.Replace(text))
	msg := "X-RequestId:" + requestID + "\r\n" +
		"Content-Type:application/ssml+xml\r\n" +
		"X-Timestamp:" + timestamp() + "\r\n" +
		"Path:ssml\r\n\r\n" +
		ssml
	return []byte(msg)
}
