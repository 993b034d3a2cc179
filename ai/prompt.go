package ai

import (
	"fmt"
	"strings"

	"github.com/hanfang-health/backend/models"
)

// ConsultationInput is the bag of optional diagnostic fields collected by the
// client during a consultation. Every field may be absent; the prompt builder
// emits a placeholder line for whatever is missing.
type ConsultationInput struct {
	Patient      *PatientInfo       `json:"patient,omitempty"`
	Inquiry      []InquiryTurn      `json:"inquiry,omitempty"`
	Tongue       *TongueObservation `json:"tongue,omitempty"`
	Face         *FaceObservation   `json:"face,omitempty"`
	Audio        *AudioAnalysis     `json:"audio,omitempty"`
	Pulse        *PulseReading      `json:"pulse,omitempty"`
	Wearable     *WearableReadings  `json:"wearable,omitempty"`
	Symptoms     []string           `json:"symptoms,omitempty"`
	ReportStyle  *ReportStyle       `json:"report_style,omitempty"`
}

// PatientInfo is the demographic context for the consultation.
type PatientInfo struct {
	Name         string  `json:"name,omitempty"`
	Age          int     `json:"age,omitempty"`
	Gender       string  `json:"gender,omitempty"`
	HeightCm     float64 `json:"height_cm,omitempty"`
	WeightKg     float64 `json:"weight_kg,omitempty"`
	Constitution string  `json:"constitution,omitempty"`
}

// InquiryTurn is one message of the inquiry chat transcript.
type InquiryTurn struct {
	Speaker string `json:"speaker" validate:"required,oneof=patient assistant"`
	Text    string `json:"text" validate:"required"`
}

// TongueObservation holds image-derived tongue findings.
type TongueObservation struct {
	BodyColor   string `json:"body_color,omitempty"`
	CoatColor   string `json:"coat_color,omitempty"`
	CoatTexture string `json:"coat_texture,omitempty"`
	Shape       string `json:"shape,omitempty"`
	Moisture    string `json:"moisture,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// FaceObservation holds image-derived facial findings.
type FaceObservation struct {
	Complexion string `json:"complexion,omitempty"`
	Luster     string `json:"luster,omitempty"`
	EyeState   string `json:"eye_state,omitempty"`
	LipColor   string `json:"lip_color,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// AudioAnalysis holds voice/breathing findings derived from audio capture.
type AudioAnalysis struct {
	VoiceStrength string `json:"voice_strength,omitempty"`
	Breathing     string `json:"breathing,omitempty"`
	Cough         string `json:"cough,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// PulseReading holds the pulse examination result.
type PulseReading struct {
	RateBPM  int    `json:"rate_bpm,omitempty"`
	Quality  string `json:"quality,omitempty"`
	Position string `json:"position,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// WearableReadings holds vitals imported from a connected device.
type WearableReadings struct {
	HeartRate        int     `json:"heart_rate,omitempty"`
	SleepHours       float64 `json:"sleep_hours,omitempty"`
	Steps            int     `json:"steps,omitempty"`
	BloodPressure    string  `json:"blood_pressure,omitempty"`
	OxygenSaturation float64 `json:"oxygen_saturation,omitempty"`
}

// ReportStyle carries the report-customization flags.
type ReportStyle struct {
	Language        string `json:"language,omitempty"`
	IncludeDietPlan bool   `json:"include_diet_plan,omitempty"`
	IncludeHerbs    bool   `json:"include_herbs,omitempty"`
	Detailed        bool   `json:"detailed,omitempty"`
}

const absent = "（未提供 / not provided）"

// BuildConsultationPrompt flattens the input bag into the structured text
// block handed to the model: a fixed sequence of sections, each rendered from
// its field when present and as a placeholder line otherwise.
func BuildConsultationPrompt(input ConsultationInput) string {
	var b strings.Builder

	b.WriteString("## 患者信息 Patient Information\n")
	if p := input.Patient; p != nil {
		if p.Name != "" {
			fmt.Fprintf(&b, "- 姓名 Name: %s\n", p.Name)
		}
		if p.Age > 0 {
			fmt.Fprintf(&b, "- 年龄 Age: %d\n", p.Age)
		}
		if p.Gender != "" {
			fmt.Fprintf(&b, "- 性别 Gender: %s\n", p.Gender)
		}
		if p.HeightCm > 0 && p.WeightKg > 0 {
			bmi := models.ComputeBMI(p.WeightKg, p.HeightCm)
			fmt.Fprintf(&b, "- 身高/体重 Height/Weight: %.0fcm / %.1fkg (BMI %.1f, %s)\n",
				p.HeightCm, p.WeightKg, bmi, models.BMICategory(bmi))
		}
		if p.Constitution != "" {
			fmt.Fprintf(&b, "- 体质 Constitution: %s\n", p.Constitution)
		}
	} else {
		b.WriteString(absent + "\n")
	}

	b.WriteString("\n## 主诉症状 Reported Symptoms\n")
	if len(input.Symptoms) > 0 {
		for _, s := range input.Symptoms {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	} else {
		b.WriteString(absent + "\n")
	}

	b.WriteString("\n## 问诊记录 Inquiry Transcript\n")
	if len(input.Inquiry) > 0 {
		for _, turn := range input.Inquiry {
			fmt.Fprintf(&b, "%s: %s\n", turn.Speaker, turn.Text)
		}
	} else {
		b.WriteString(absent + "\n")
	}

	b.WriteString("\n## 舌诊 Tongue Examination\n")
	if t := input.Tongue; t != nil {
		writeField(&b, "舌质 Body color", t.BodyColor)
		writeField(&b, "苔色 Coat color", t.CoatColor)
		writeField(&b, "苔质 Coat texture", t.CoatTexture)
		writeField(&b, "舌形 Shape", t.Shape)
		writeField(&b, "润燥 Moisture", t.Moisture)
		writeField(&b, "备注 Notes", t.Notes)
	} else {
		b.WriteString(absent + "\n")
	}

	b.WriteString("\n## 面诊 Facial Examination\n")
	if f := input.Face; f != nil {
		writeField(&b, "面色 Complexion", f.Complexion)
		writeField(&b, "光泽 Luster", f.Luster)
		writeField(&b, "目态 Eye state", f.EyeState)
		writeField(&b, "唇色 Lip color", f.LipColor)
		writeField(&b, "备注 Notes", f.Notes)
	} else {
		b.WriteString(absent + "\n")
	}

	b.WriteString("\n## 闻诊 Listening Examination\n")
	if a := input.Audio; a != nil {
		writeField(&b, "声音 Voice strength", a.VoiceStrength)
		writeField(&b, "呼吸 Breathing", a.Breathing)
		writeField(&b, "咳嗽 Cough", a.Cough)
		writeField(&b, "备注 Notes", a.Notes)
	} else {
		b.WriteString(absent + "\n")
	}

	b.WriteString("\n## 脉诊 Pulse Examination\n")
	if p := input.Pulse; p != nil {
		if p.RateBPM > 0 {
			fmt.Fprintf(&b, "- 脉率 Rate: %d bpm\n", p.RateBPM)
		}
		writeField(&b, "脉象 Quality", p.Quality)
		writeField(&b, "部位 Position", p.Position)
		writeField(&b, "备注 Notes", p.Notes)
	} else {
		b.WriteString(absent + "\n")
	}

	b.WriteString("\n## 可穿戴设备数据 Wearable Readings\n")
	if w := input.Wearable; w != nil {
		if w.HeartRate > 0 {
			fmt.Fprintf(&b, "- 心率 Heart rate: %d bpm\n", w.HeartRate)
		}
		if w.SleepHours > 0 {
			fmt.Fprintf(&b, "- 睡眠 Sleep: %.1f h\n", w.SleepHours)
		}
		if w.Steps > 0 {
			fmt.Fprintf(&b, "- 步数 Steps: %d\n", w.Steps)
		}
		writeField(&b, "血压 Blood pressure", w.BloodPressure)
		if w.OxygenSaturation > 0 {
			fmt.Fprintf(&b, "- 血氧 SpO2: %.1f%%\n", w.OxygenSaturation)
		}
	} else {
		b.WriteString(absent + "\n")
	}

	b.WriteString("\n## 报告要求 Report Requirements\n")
	if s := input.ReportStyle; s != nil {
		if s.Language != "" {
			fmt.Fprintf(&b, "- 语言 Language: %s\n", s.Language)
		}
		fmt.Fprintf(&b, "- 包含食疗建议 Include diet plan: %t\n", s.IncludeDietPlan)
		fmt.Fprintf(&b, "- 包含方药建议 Include herbal suggestions: %t\n", s.IncludeHerbs)
		fmt.Fprintf(&b, "- 详细报告 Detailed: %t\n", s.Detailed)
	} else {
		b.WriteString("默认格式 default format\n")
	}

	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}
