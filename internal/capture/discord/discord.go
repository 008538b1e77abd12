// Package discord captures a Discord voice channel as if it were a room
// microphone.
package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
	"github.com/user/meeting-voiceid/internal/audio"
)

// Microphone joins GuildID/ChannelID muted and streams received voice.
type Microphone struct {
	session   *discordgo.Session
	guildID   string
	channelID string

	opened bool
	mutex  sync.Mutex
}

func NewMicrophone(token, guildID, channelID string) (*Microphone, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates

	return &Microphone{
		session:   session,
		guildID:   guildID,
		channelID: channelID,
	}, nil
}

func (m *Microphone) connect() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.opened {
		return nil
	}
	if err := m.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	m.opened = true

	log.Info().Msg("Discord connection established")
	return nil
}

// Open joins the voice channel. Received 48kHz audio is resampled to
// cfg.SampleRate.
func (m *Microphone) Open(ctx context.Context, cfg audio.StreamConfig) (audio.Stream, error) {
	if err := m.connect(); err != nil {
		return nil, err
	}

	// mute: true (we never send audio), deaf: false (we must receive it)
	voiceConn, err := m.session.ChannelVoiceJoin(m.guildID, m.channelID, true, false)
	if err != nil {
		return nil, fmt.Errorf("failed to join voice channel: %w", err)
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for !voiceReady(voiceConn) {
		select {
		case <-ctx.Done():
			voiceConn.Disconnect()
			return nil, fmt.Errorf("voice connection not ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = audio.OpusSampleRate
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s := &stream{
		voiceConn:  voiceConn,
		reframer:   audio.NewReframer(cfg.BlockSize, 64),
		sampleRate: sampleRate,
		speakers:   make(map[uint32]*speaker),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go s.receive(loopCtx)

	log.Info().
		Str("guild_id", m.guildID).
		Str("channel_id", m.channelID).
		Int("sample_rate", sampleRate).
		Int("block_size", cfg.BlockSize).
		Msg("Listening to voice channel")

	return s, nil
}

func voiceReady(vc *discordgo.VoiceConnection) bool {
	vc.RLock()
	defer vc.RUnlock()
	return vc.Ready
}

// Close ends the gateway session.
func (m *Microphone) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.opened {
		return nil
	}
	m.opened = false
	return m.session.Close()
}

type stream struct {
	voiceConn  *discordgo.VoiceConnection
	reframer   *audio.Reframer
	sampleRate int
	// Decoding and resampling are stateful, so every SSRC keeps its own.
	speakers map[uint32]*speaker

	cancel  context.CancelFunc
	done    chan struct{}
	release sync.Once
}

func (s *stream) receive(ctx context.Context) {
	defer close(s.done)
	defer log.Debug().Msg("Voice receive loop stopped")

	for {
		select {
		case packet, ok := <-s.voiceConn.OpusRecv:
			if !ok {
				log.Info().Msg("Voice receive channel closed")
				s.reframer.Stop()
				return
			}
			s.handlePacket(packet)
		case <-ctx.Done():
			return
		}
	}
}

type speaker struct {
	decoder   *audio.OpusDecoder
	resampler *audio.Resampler
}

func (s *stream) speakerFor(ssrc uint32) (*speaker, error) {
	if sp, ok := s.speakers[ssrc]; ok {
		return sp, nil
	}
	decoder, err := audio.NewOpusDecoder()
	if err != nil {
		return nil, err
	}
	resampler, err := audio.NewResampler(audio.OpusSampleRate, s.sampleRate)
	if err != nil {
		return nil, err
	}
	sp := &speaker{decoder: decoder, resampler: resampler}
	s.speakers[ssrc] = sp
	return sp, nil
}

func (s *stream) handlePacket(packet *discordgo.Packet) {
	sp, err := s.speakerFor(packet.SSRC)
	if err != nil {
		log.Warn().Err(err).Uint32("ssrc", packet.SSRC).Msg("Failed to set up speaker decoding")
		return
	}

	pcm, err := sp.decoder.Decode(packet.Opus)
	if err != nil {
		log.Warn().
			Uint32("ssrc", packet.SSRC).
			Err(err).
			Msg("Failed to decode opus packet")
		return
	}

	samples, err := sp.resampler.Process(audio.Int16ToFloat(pcm))
	if err != nil {
		log.Warn().Err(err).Uint32("ssrc", packet.SSRC).Msg("Failed to resample packet")
		return
	}
	s.reframer.Push(samples)
}

func (s *stream) Blocks() <-chan []float32 {
	return s.reframer.Blocks()
}

func (s *stream) SampleRate() int {
	return s.sampleRate
}

func (s *stream) Close() error {
	s.release.Do(func() {
		s.cancel()
		<-s.done
		s.reframer.Stop()
		if err := s.voiceConn.Disconnect(); err != nil {
			log.Warn().Err(err).Msg("Failed to leave voice channel")
		}
	})
	return nil
}
