package speech

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// ssmlOptions 描述一次合成的声音参数。
type ssmlOptions struct {
	Voice    string
	Language string
	Rate     *float64
	Pitch    *float64
	Style    string
	Degree   float64
}

// buildSSML 生成 SSML。只有显式传入 rate/pitch 时才包裹 prosody。
func buildSSML(text string, opts ssmlOptions) string {
	var buf bytes.Buffer
	lang := opts.Language
	if lang == "" {
		lang = defaultLanguage
	}

	fmt.Fprintf(&buf, `<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xmlns:mstts="https://www.w3.org/2001/mstts" xml:lang="%s">`, escapeAttr(lang))
	fmt.Fprintf(&buf, `<voice name="%s">`, escapeAttr(opts.Voice))

	if opts.Style != "" {
		fmt.Fprintf(&buf, `<mstts:express-as style="%s"`, escapeAttr(opts.Style))
		if opts.Degree > 0 {
			fmt.Fprintf(&buf, ` styledegree="%s"`, strconv.FormatFloat(opts.Degree, 'f', 2, 64))
		}
		buf.WriteString(">")
	}

	prosody := opts.Rate != nil || opts.Pitch != nil
	if prosody {
		fmt.Fprintf(&buf, `<prosody rate="%s" pitch="%s">`, formatRate(opts.Rate), formatPitch(opts.Pitch))
	}

	_ = xml.EscapeText(&buf, []byte(text))

	if prosody {
		buf.WriteString("</prosody>")
	}
	if opts.Style != "" {
		buf.WriteString("</mstts:express-as>")
	}
	buf.WriteString("</voice></speak>")
	return buf.String()
}

// formatRate 语速倍率限制在 0.5-2.0。
func formatRate(rate *float64) string {
	value := 1.0
	if rate != nil {
		value = min(2.0, max(0.5, *rate))
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func formatPitch(pitch *float64) string {
	if pitch == nil || *pitch == 0 {
		return "0%"
	}
	formatted := strconv.FormatFloat(*pitch, 'f', -1, 64) + "%"
	if *pitch > 0 {
		return "+" + formatted
	}
	return formatted
}

func escapeAttr(value string) string {
	var buf strings.Builder
	_ = xml.EscapeText(&buf, []byte(value))
	return buf.String()
}
