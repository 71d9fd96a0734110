package orchestrator

import "golang.org/x/text/language"

// Labels are the user-facing status messages of a session.
type Labels struct {
	CreatingPreview   string
	GeneratingPreview string
	CreatingRefine    string
	GeneratingRefine  string
	Completed         string
	Failed            string
	EmptyPrompt       string
	TaskFailed        string
	StatusUnavailable string
	PreviewNotCreated string
	RefineNotCreated  string
}

var EnglishLabels = Labels{
	CreatingPreview:   "Creating preview task...",
	GeneratingPreview: "Generating preview model... (this may take a minute)",
	CreatingRefine:    "Preview complete. Creating final model...",
	GeneratingRefine:  "Generating final model...",
	Completed:         "Model generated successfully!",
	Failed:            "An error occurred.",
	EmptyPrompt:       "Please enter a prompt.",
	TaskFailed:        "Task failed during generation.",
	StatusUnavailable: "Could not get task status.",
	PreviewNotCreated: "Could not create preview task.",
	RefineNotCreated:  "Could not create refine task.",
}

var KoreanLabels = Labels{
	CreatingPreview:   "미리보기 작업을 생성하는 중...",
	GeneratingPreview: "미리보기 모델을 생성하는 중... (1분 정도 걸릴 수 있습니다)",
	CreatingRefine:    "미리보기 완료. 최종 모델을 생성하는 중...",
	GeneratingRefine:  "최종 모델을 생성하는 중...",
	Completed:         "모델이 성공적으로 생성되었습니다!",
	Failed:            "오류가 발생했습니다.",
	EmptyPrompt:       "프롬프트를 입력해 주세요.",
	TaskFailed:        "생성 중 작업이 실패했습니다.",
	StatusUnavailable: "작업 상태를 가져올 수 없습니다.",
	PreviewNotCreated: "미리보기 작업을 생성할 수 없습니다.",
	RefineNotCreated:  "정제 작업을 생성할 수 없습니다.",
}

var (
	supportedLocales = []language.Tag{language.English, language.Korean}
	localeMatcher    = language.NewMatcher(supportedLocales)
)

// LabelsFor picks the label set closest to locale; English is the fallback.
func LabelsFor(locale string) Labels {
	if locale == "" {
		return EnglishLabels
	}
	tag, _ := language.MatchStrings(localeMatcher, locale)
	base, _ := tag.Base()
	if base.String() == "ko" {
		return KoreanLabels
	}
	return EnglishLabels
}
