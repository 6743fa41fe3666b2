package rtc

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog"

	"github.com/chadiek/live-interpreter/internal/history"
	"github.com/chadiek/live-interpreter/internal/session"

	"github.com/hraban/opus"
)

// SessionDescription is a small DTO to avoid exposing webrtc types in transport.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Handler terminates WebRTC peer connections for the browser audio path:
// inbound Opus is decoded to 16kHz PCM and fed to the interpreter session,
// outbound speech is paced onto the answer track through the sink mux.
type Handler struct {
	ctrl       *session.Controller
	sink       *SinkMux
	iceServers []webrtc.ICEServer
	log        zerolog.Logger
}

func NewHandler(ctrl *session.Controller, sink *SinkMux, iceServersJSON string, log zerolog.Logger) *Handler {
	return &Handler{
		ctrl:       ctrl,
		sink:       sink,
		iceServers: parseICEServers(iceServersJSON),
		log:        log.With().Str("component", "rtc").Logger(),
	}
}

// parseICEServers decodes the ICE_SERVERS_JSON config value. Invalid or empty
// input falls back to Google's public STUN server.
func parseICEServers(raw string) []webrtc.ICEServer {
	fallback := []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	var servers []webrtc.ICEServer
	if err := json.Unmarshal([]byte(raw), &servers); err != nil || len(servers) == 0 {
		return fallback
	}
	return servers
}

// HandleOffer accepts an SDP offer and returns the SDP answer after ICE
// gathering completes.
func (h *Handler) HandleOffer(ctx context.Context, offer SessionDescription) (SessionDescription, error) {
	if offer.Type != "offer" || offer.SDP == "" {
		return SessionDescription{}, errors.New("invalid offer")
	}

	connID := uuid.NewString()[:8]
	log := h.log.With().Str("conn", connID).Logger()

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return SessionDescription{}, err
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, ir); err != nil {
		return SessionDescription{}, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(ir))

	peerConnection, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: h.iceServers})
	if err != nil {
		return SessionDescription{}, err
	}

	outTrack, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 1}, "interpreter-audio", "interpreter")
	if err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	if _, err := peerConnection.AddTrack(outTrack); err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}

	paced, err := NewOpusPacedWriter(outTrack)
	if err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	h.sink.Attach(paced)

	peerConnection.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.Debug().Str("state", state.String()).Msg("ICE state")
	})

	peerConnection.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Info().Str("state", state.String()).Msg("peer connection state")
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			h.sink.Detach(paced)
			h.ctrl.Stop()
			paced.FlushTail()
			time.AfterFunc(400*time.Millisecond, paced.Close)
			_ = peerConnection.Close()
		}
	})

	// Control channel: lets the client drive the session without a round
	// trip through the HTTP API.
	peerConnection.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != "control" {
			return
		}
		log.Info().Msg("control channel opened")
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			cmd := strings.TrimSpace(strings.ToLower(string(msg.Data)))
			switch cmd {
			case "speaker-a":
				h.ctrl.ToggleSpeaker(history.SlotA)
				paced.Reset()
			case "speaker-b":
				h.ctrl.ToggleSpeaker(history.SlotB)
				paced.Reset()
			case "stop":
				h.ctrl.Stop()
				paced.Reset()
			case "end":
				h.ctrl.EndSession()
				paced.Reset()
			}
		})
	})

	peerConnection.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		log.Info().Str("codec", remote.Codec().MimeType).Msg("remote audio track")

		dec, derr := opus.NewDecoder(16000, 1)
		if derr != nil {
			log.Error().Err(derr).Msg("opus decoder")
			return
		}
		go h.micReader(log, remote, dec)
	})

	remoteOffer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := peerConnection.SetRemoteDescription(remoteOffer); err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	answer, err := peerConnection.CreateAnswer(nil)
	if err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(peerConnection)
	if err := peerConnection.SetLocalDescription(answer); err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		_ = peerConnection.Close()
		return SessionDescription{}, ctx.Err()
	}
	local := peerConnection.LocalDescription()
	if local == nil {
		_ = peerConnection.Close()
		return SessionDescription{}, errors.New("no local description")
	}
	return SessionDescription{Type: "answer", SDP: local.SDP}, nil
}

// micReader decodes inbound Opus to 16kHz mono PCM and forwards it to the
// session controller in fixed 100ms chunks.
func (h *Handler) micReader(log zerolog.Logger, remote *webrtc.TrackRemote, dec *opus.Decoder) {
	const pcm16kChunkBytes = 3200 // 100ms at 16kHz s16le
	pcmSamples := make([]int16, 1920)
	buf := make([]byte, 0, pcm16kChunkBytes*4)
	for {
		pkt, _, readErr := remote.ReadRTP()
		if readErr != nil {
			log.Debug().Err(readErr).Msg("RTP read ended")
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		n, decErr := dec.Decode(pkt.Payload, pcmSamples)
		if decErr != nil {
			log.Warn().Err(decErr).Msg("opus decode")
			continue
		}
		startLen := len(buf)
		need := n * 2
		if cap(buf)-startLen < need {
			tmp := make([]byte, startLen, startLen+need+pcm16kChunkBytes)
			copy(tmp, buf)
			buf = tmp
		}
		buf = buf[:startLen+need]
		o := buf[startLen:]
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint16(o[i*2:(i+1)*2], uint16(pcmSamples[i]))
		}
		for len(buf) >= pcm16kChunkBytes {
			chunk := make([]byte, pcm16kChunkBytes)
			copy(chunk, buf[:pcm16kChunkBytes])
			h.ctrl.FeedAudio(chunk)
			copy(buf, buf[pcm16kChunkBytes:])
			buf = buf[:len(buf)-pcm16kChunkBytes]
		}
	}
}
