package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/acoda/backend/internal/app"
	"github.com/zhouzirui/acoda/backend/internal/config"
	"github.com/zhouzirui/acoda/backend/internal/logger"
	speechmodel "github.com/zhouzirui/acoda/backend/internal/model/speech"
	"github.com/zhouzirui/acoda/backend/internal/service/speech"
)

func main() {
	logger.Configure("debug", "text")
	log := logger.WithComponent("speechtester")

	if err := godotenv.Load(); err != nil {
		log.WithError(err).Warn("无法加载 .env，改用系统环境变量")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("配置加载失败")
	}

	if !cfg.Speech.Enabled {
		log.Fatal("语音服务未启用，请先配置 AZURE_SPEECH_KEY 与 AZURE_SPEECH_REGION")
	}

	mode := flag.String("mode", "", "测试模式: asr 或 tts")
	audioPath := flag.String("audio", "", "ASR 输入音频文件路径")
	text := flag.String("text", "", "TTS 输入文本")
	outputPath := flag.String("out", "", "TTS 输出音频文件路径 (默认自动生成)")
	format := flag.String("format", "", "ASR 输入格式: wav, ogg, webm")
	language := flag.String("lang", "", "语言代码，默认使用配置中的语言")
	voice := flag.String("voice", "", "TTS 声音，默认使用 SPEECH_TTS_VOICE")
	emotion := flag.String("emotion", "", "TTS 情绪标签，例如 happy、sad")
	intensity := flag.Float64("intensity", 0.6, "情绪强度 0-1")
	session := flag.String("session", "", "自定义 sessionID，留空则自动生成")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	if *mode != "asr" && *mode != "tts" {
		flag.Usage()
		log.Fatal("请通过 -mode=asr 或 -mode=tts 指定测试模式")
	}

	sessionID := *session
	if sessionID == "" {
		sessionID = fmt.Sprintf("manual-%d", time.Now().UnixNano())
	}

	svc := speech.NewService(app.NewSpeechConfig(cfg.Speech))
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "asr":
		runASR(ctx, log, svc, sessionID, *audioPath, *format, *language)
	case "tts":
		req := &speechmodel.TTSRequest{
			SessionID: sessionID,
			Text:      *text,
			Voice:     *voice,
			Language:  *language,
			Emotion:   *emotion,
			Intensity: *intensity,
		}
		runTTS(ctx, log, svc, req, *outputPath)
	}
}

func runASR(ctx context.Context, log *logrus.Entry, svc *speech.Service, sessionID, audioPath, format, language string) {
	if audioPath == "" {
		log.Fatal("ASR 模式需要通过 -audio 指定音频文件路径")
	}

	file, err := os.Open(audioPath)
	if err != nil {
		log.WithError(err).Fatal("打开音频文件失败")
	}
	defer file.Close()

	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(audioPath)), ".")
		if format == "" {
			format = "wav"
		}
	}

	log.WithFields(logrus.Fields{"session": sessionID, "format": format, "language": language}).Info("开始进行 ASR 测试")

	resp, err := svc.TranscribeAudio(ctx, &speechmodel.ASRRequest{
		SessionID: sessionID,
		AudioData: file,
		Format:    format,
		Language:  language,
	})
	if err != nil {
		log.WithError(err).Fatal("ASR 调用失败")
	}

	log.WithFields(logrus.Fields{"text": resp.Text, "duration_ms": resp.Duration}).Info("ASR 识别成功")
}

func runTTS(ctx context.Context, log *logrus.Entry, svc *speech.Service, req *speechmodel.TTSRequest, outputPath string) {
	if strings.TrimSpace(req.Text) == "" {
		log.Fatal("TTS 模式需要通过 -text 提供待合成文本")
	}

	if outputPath == "" {
		outputPath = fmt.Sprintf("tts-output-%d.mp3", time.Now().Unix())
	}

	log.WithFields(logrus.Fields{"session": req.SessionID, "voice": req.Voice, "emotion": req.Emotion}).Info("开始进行 TTS 测试")

	resp, err := svc.SynthesizeSpeech(ctx, req)
	if err != nil {
		log.WithError(err).Fatal("TTS 调用失败")
	}

	if err := os.WriteFile(outputPath, resp.AudioData, 0o644); err != nil {
		log.WithError(err).Fatal("写入音频文件失败")
	}

	log.WithFields(logrus.Fields{
		"out":     outputPath,
		"bytes":   len(resp.AudioData),
		"format":  resp.Format,
		"visemes": len(resp.VisemeEvents),
	}).Info("TTS 合成成功")
}
