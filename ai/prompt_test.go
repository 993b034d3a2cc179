package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildConsultationPromptEmptyInput(t *testing.T) {
	prompt := BuildConsultationPrompt(ConsultationInput{})

	// Every section header is present even when all fields are absent.
	for _, header := range []string{
		"## 患者信息 Patient Information",
		"## 主诉症状 Reported Symptoms",
		"## 问诊记录 Inquiry Transcript",
		"## 舌诊 Tongue Examination",
		"## 面诊 Facial Examination",
		"## 闻诊 Listening Examination",
		"## 脉诊 Pulse Examination",
		"## 可穿戴设备数据 Wearable Readings",
		"## 报告要求 Report Requirements",
	} {
		assert.Contains(t, prompt, header)
	}

	// Eight placeholder lines: one per observation section, report style uses
	// its own default marker.
	assert.Equal(t, 8, strings.Count(prompt, "（未提供 / not provided）"))
	assert.Contains(t, prompt, "默认格式 default format")
}

func TestBuildConsultationPromptRendersProvidedFields(t *testing.T) {
	prompt := BuildConsultationPrompt(ConsultationInput{
		Patient: &PatientInfo{
			Name:     "王小明",
			Age:      34,
			Gender:   "male",
			HeightCm: 175,
			WeightKg: 70,
		},
		Symptoms: []string{"失眠", "口干"},
		Inquiry: []InquiryTurn{
			{Speaker: "assistant", Text: "睡眠质量如何？"},
			{Speaker: "patient", Text: "最近入睡困难"},
		},
		Tongue: &TongueObservation{
			BodyColor: "红",
			CoatColor: "黄",
		},
		Pulse: &PulseReading{
			RateBPM: 78,
			Quality: "弦",
		},
	})

	assert.Contains(t, prompt, "姓名 Name: 王小明")
	assert.Contains(t, prompt, "年龄 Age: 34")
	assert.Contains(t, prompt, "BMI 22.9")
	assert.Contains(t, prompt, "- 失眠")
	assert.Contains(t, prompt, "patient: 最近入睡困难")
	assert.Contains(t, prompt, "舌质 Body color: 红")
	assert.Contains(t, prompt, "脉率 Rate: 78 bpm")
	assert.Contains(t, prompt, "脉象 Quality: 弦")

	// Sections with data must not carry the placeholder; untouched ones must.
	assert.NotContains(t, sectionOf(prompt, "## 舌诊"), "未提供")
	assert.Contains(t, sectionOf(prompt, "## 面诊"), "未提供")
	assert.Contains(t, sectionOf(prompt, "## 闻诊"), "未提供")
}

// sectionOf returns the prompt text from the given header up to the next one.
func sectionOf(prompt, header string) string {
	start := strings.Index(prompt, header)
	if start < 0 {
		return ""
	}
	rest := prompt[start+len(header):]
	if end := strings.Index(rest, "\n## "); end >= 0 {
		return rest[:end]
	}
	return rest
}

func TestBuildConsultationPromptReportStyle(t *testing.T) {
	prompt := BuildConsultationPrompt(ConsultationInput{
		ReportStyle: &ReportStyle{
			Language:        "zh-CN",
			IncludeDietPlan: true,
			IncludeHerbs:    true,
			Detailed:        false,
		},
	})

	assert.Contains(t, prompt, "语言 Language: zh-CN")
	assert.Contains(t, prompt, "包含食疗建议 Include diet plan: true")
	assert.Contains(t, prompt, "包含方药建议 Include herbal suggestions: true")
	assert.Contains(t, prompt, "详细报告 Detailed: false")
	assert.NotContains(t, prompt, "默认格式")
}
