package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/satriahrh/anamnesa/adapters/coze"
	"github.com/satriahrh/anamnesa/adapters/stt"
	"github.com/satriahrh/anamnesa/adapters/tts"
	"github.com/satriahrh/anamnesa/domain/entities"
	"github.com/satriahrh/anamnesa/domain/repositories"
	"github.com/satriahrh/anamnesa/internal/audio"
	"github.com/satriahrh/anamnesa/internal/config"
	"github.com/satriahrh/anamnesa/usecase"
)

func main() {
	audioOut := flag.String("audio", "ffplay", "audio output: ffplay, wav, or none")
	wavPath := flag.String("wav", "session.wav", "output path for -audio wav")
	volume := flag.Int("volume", 80, "playback volume for -audio ffplay (0-100)")
	voiceEcho := flag.Bool("voice-echo", false, "attach a synthesized spoken copy of each message")
	useGoogleSTT := flag.Bool("google-stt", false, "use Google Cloud for /say transcription")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	logger, _ := zap.NewProduction()
	if *verbose {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	config.Load(logger)

	client, err := coze.NewClient(coze.NewClientConfigFromEnv(), logger)
	if err != nil {
		logger.Fatal("Invalid platform configuration", zap.Error(err))
	}

	sink := buildSink(*audioOut, *wavPath, *volume, logger)

	player := audio.NewPlayer(sink, clock.New(), logger)
	defer player.Close()
	session := usecase.NewChatSession(client, player, logger)

	var recognizer repositories.SpeechToText
	if *useGoogleSTT {
		recognizer = stt.NewGoogleSpeechToText(logger)
	} else {
		recognizer = stt.NewMockSpeechToText(logger)
	}

	// Voice echoes are synthesized by ElevenLabs when a key is configured,
	// by the agent platform otherwise.
	var synthesizer repositories.SpeechSynthesizer = client
	if elevenConfig := tts.NewElevenLabsConfigFromEnv(); elevenConfig.APIKey != "" {
		eleven, err := tts.NewElevenLabs(elevenConfig, logger)
		if err != nil {
			logger.Fatal("Invalid ElevenLabs configuration", zap.Error(err))
		}
		synthesizer = eleven
	}

	fmt.Println("anamnesa - type a message, /attach <path>, /say <wav>, /reset, /quit")

	var pendingAttachments []entities.Attachment
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			session.Stop()
			return

		case line == "/reset":
			session.Reset()
			fmt.Println("conversation cleared")
			continue

		case strings.HasPrefix(line, "/attach "):
			path := strings.TrimSpace(strings.TrimPrefix(line, "/attach "))
			attachment, err := uploadFile(client, path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "attach failed: %v\n", err)
				continue
			}
			pendingAttachments = append(pendingAttachments, attachment)
			fmt.Printf("attached %s (%s)\n", attachment.Name, attachment.ID)
			continue

		case strings.HasPrefix(line, "/say "):
			path := strings.TrimSpace(strings.TrimPrefix(line, "/say "))
			text, err := transcribeFile(recognizer, path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "transcription failed: %v\n", err)
				continue
			}
			fmt.Printf("you said: %s\n", text)
			line = text
		}

		message := entities.NewUserMessage("", line, pendingAttachments)
		pendingAttachments = nil

		opts := usecase.StartOptions{}
		if *voiceEcho {
			opts.PrepareAttachments = usecase.NewVoiceEchoPreparer(synthesizer, client, line, logger)
		}

		runTurn(session, message, opts)
	}
}

// runTurn sends one message and prints the reply as it streams in.
func runTurn(session *usecase.ChatSession, message entities.Message, opts usecase.StartOptions) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		session.Start(context.Background(), message, opts)
	}()

	printed := 0
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			printed += printNewOutput(session, printed)
		case <-done:
			printed += printNewOutput(session, printed)
			if printed > 0 {
				fmt.Println()
			}
			if errMsg := session.Err(); errMsg != "" {
				fmt.Fprintf(os.Stderr, "error: %s\n", errMsg)
			}
			// Let trailing reply audio finish before the next prompt.
			for session.IsAudioPlaying() {
				time.Sleep(100 * time.Millisecond)
			}
			return
		}
	}
}

// printNewOutput prints the assistant text that arrived since the last call
// and returns how many bytes it wrote.
func printNewOutput(session *usecase.ChatSession, printed int) int {
	messages := session.Messages()
	if len(messages) == 0 {
		return 0
	}
	last := messages[len(messages)-1]
	if last.Role != entities.RoleAssistant || len(last.Content) <= printed {
		return 0
	}
	fmt.Print(last.Content[printed:])
	return len(last.Content) - printed
}

func uploadFile(uploader repositories.FileUploader, path string) (entities.Attachment, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return entities.Attachment{}, err
	}

	kind := entities.AttachmentDocument
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		kind = entities.AttachmentImage
	case ".wav", ".mp3", ".ogg":
		kind = entities.AttachmentAudio
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return uploader.Upload(ctx, filepath.Base(path), kind, content)
}

func transcribeFile(recognizer repositories.SpeechToText, path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return recognizer.TranscribeAudio(ctx, content, repositories.AudioConfig{
		SampleRate: 16000,
		Encoding:   "LINEAR16",
		Language:   "en-US",
	})
}

func buildSink(kind, wavPath string, volume int, logger *zap.Logger) audio.Sink {
	switch kind {
	case "wav":
		return audio.NewWAVSink(wavPath, logger)
	case "none":
		return audio.NullSink{}
	default:
		return audio.NewFFPlaySink("", volume, logger)
	}
}
