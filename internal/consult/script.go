package consult

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ScriptStep is one stage of a replayed consultation.
type ScriptStep struct {
	Progress float64
	Step     string
	// Nominal wall time the real workflow spends in this stage. Only used
	// to report a duration; the scripted backend never sleeps.
	Nominal time.Duration
}

// Script is a full canned consultation: the progress stages plus the terminal
// result the final stage carries.
type Script struct {
	Steps  []ScriptStep
	Result Result
}

// NominalDuration sums the per-step nominal times.
func (s Script) NominalDuration() time.Duration {
	var total time.Duration
	for _, step := range s.Steps {
		total += step.Nominal
	}
	return total
}

// DemoScript replays the consultation the real backend produces for a typical
// pediatric question: five recruited experts, three discussion rounds, one
// moderator decision.
func DemoScript() Script {
	steps := []ScriptStep{
		{Progress: 10, Step: "正在组建AI专家团队...", Nominal: 4 * time.Second},
		{Progress: 25, Step: "专家团队组建完毕，正在初始化...", Nominal: 2 * time.Second},
		{Progress: 30, Step: "正在初始化专家...", Nominal: 1 * time.Second},
		{Progress: 35, Step: "专家初始化完成，开始收集意见...", Nominal: 1 * time.Second},
		{Progress: 40, Step: "专家们正在进行第一轮意见收集...", Nominal: 20 * time.Second},
		{Progress: 60, Step: "专家们正在进行第二轮讨论...", Nominal: 20 * time.Second},
		{Progress: 70, Step: "专家们正在进行最终讨论...", Nominal: 18 * time.Second},
		{Progress: 80, Step: "正在汇总各专家最终意见...", Nominal: 12 * time.Second},
		{Progress: 90, Step: "正在生成最终会诊结论...", Nominal: 8 * time.Second},
		{Progress: 100, Step: "会诊完成！", Nominal: 0},
	}

	experts := []Expert{
		{Role: "儿科医生", Description: "专门从事婴幼儿、儿童和青少年的医疗保健工作", Hierarchy: "Independent"},
		{Role: "呼吸科专家", Description: "专门诊断和治疗呼吸系统疾病", Hierarchy: "儿科医生 > 呼吸科专家"},
		{Role: "感染科专家", Description: "专注于各类感染性疾病的诊断与抗感染治疗", Hierarchy: "Independent"},
		{Role: "影像科医生", Description: "负责解读胸片、CT等影像学检查结果", Hierarchy: "Independent"},
		{Role: "全科医生", Description: "负责整体评估和随访管理，协调各专科意见", Hierarchy: "Independent"},
	}

	rounds := map[string]map[string]string{
		"1": {
			"儿科医生":  "诊断意见：患儿发热三天伴咳嗽，首先考虑急性上呼吸道感染，需观察精神状态和进食情况。",
			"呼吸科专家": "诊断意见：咳嗽伴发热需警惕下呼吸道受累，建议听诊肺部，必要时查胸片。",
			"感染科专家": "诊断意见：病程三天，建议查血常规和C反应蛋白以区分病毒性与细菌性感染。",
			"影像科医生": "诊断意见：如持续高热或出现呼吸急促，应行胸部影像学检查排除肺炎。",
			"全科医生":  "诊断意见：目前以对症处理和密切观察为主，注意补液与退热。",
		},
		"2": {
			"儿科医生":  "同意先行血常规检查；若精神状态良好、热峰下降，可继续居家观察。",
			"呼吸科专家": "结合各位意见，若肺部听诊无啰音且无气促，暂不急于影像学检查。",
			"感染科专家": "补充：若血象提示细菌感染，再考虑抗菌治疗，避免经验性滥用抗生素。",
			"影像科医生": "同意将影像学作为二线手段，出现持续高热不退或呼吸道症状加重时启用。",
			"全科医生":  "建议明确随访时间点：48小时内复诊评估，期间记录体温曲线。",
		},
		"3": {
			"儿科医生":  "最终意见：急性呼吸道感染可能性大，先化验、对症、密切随访，必要时升级检查。",
			"呼吸科专家": "最终意见：维持观察策略，设定就医红线（气促、口唇发绀、嗜睡）。",
			"感染科专家": "最终意见：根据血象决定是否抗感染，目前不建议自行用药。",
			"影像科医生": "最终意见：影像学检查按需进行，避免不必要的辐射暴露。",
			"全科医生":  "最终意见：家庭护理加定点随访，向家长交代观察要点。",
		},
	}

	finals := map[string]string{
		"儿科医生":  "建议先完善血常规与CRP检查，居家对症退热、补液，48小时内复诊；出现精神差、气促立即就医。",
		"呼吸科专家": "目前不考虑肺炎，但需监测呼吸频率；若咳嗽加重或出现喘息，及时行肺部听诊与胸片检查。",
		"感染科专家": "结合病程与症状，病毒感染可能性大；血象回报前不建议使用抗生素。",
		"影像科医生": "暂无影像学检查指征；如临床怀疑下呼吸道感染，首选胸部正位片。",
		"全科医生":  "综合各专科意见，以观察与对症为主，明确复诊计划和就医警示信号。",
	}

	decision := "诊断结论：考虑急性上呼吸道感染（病毒性可能性大）。\n" +
		"诊断依据：发热三天伴咳嗽，无气促及精神萎靡等重症表现。\n" +
		"建议检查：血常规、C反应蛋白；如症状加重行胸部正位片。\n" +
		"治疗建议：对症退热、充分补液休息，暂不使用抗生素，48小时内复诊。\n" +
		"注意事项：出现呼吸急促、口唇发绀、持续高热不退或嗜睡，请立即就医。"

	script := Script{
		Steps: steps,
		Result: Result{
			Question:      "孩子发烧38.5度三天了，伴有咳嗽，需要去医院吗？",
			Experts:       experts,
			RoundOpinions: rounds,
			FinalAnswers:  finals,
			Decision:      decision,
		},
	}
	script.Result.Duration = script.NominalDuration().Seconds()
	return script
}

type scriptedSession struct {
	question string
	next     int
}

// ScriptedBackend replays a Script without any network or timers: every
// Progress call advances the session one step, so a 2-second poll loop walks
// through the whole consultation deterministically.
type ScriptedBackend struct {
	script Script

	mu       sync.Mutex
	sessions map[string]*scriptedSession
}

// NewScriptedBackend creates a mock backend over the given script.
func NewScriptedBackend(script Script) *ScriptedBackend {
	return &ScriptedBackend{
		script:   script,
		sessions: make(map[string]*scriptedSession),
	}
}

// Start implements Backend.
func (b *ScriptedBackend) Start(ctx context.Context, req Request) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	id := uuid.NewString()
	b.mu.Lock()
	b.sessions[id] = &scriptedSession{question: req.Question}
	b.mu.Unlock()
	return Session{ID: id}, nil
}

// Progress implements Backend. The final step carries the script result with
// the session's own question substituted in.
func (b *ScriptedBackend) Progress(ctx context.Context, session Session) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.sessions[session.ID]
	if !ok {
		return Snapshot{}, fmt.Errorf("consult: unknown session %s", session.ID)
	}
	if len(b.script.Steps) == 0 {
		return Snapshot{}, fmt.Errorf("consult: script has no steps")
	}
	idx := state.next
	if idx >= len(b.script.Steps) {
		idx = len(b.script.Steps) - 1
	} else {
		state.next++
	}
	step := b.script.Steps[idx]

	snap := Snapshot{
		Progress:    step.Progress,
		CurrentStep: step.Step,
		Status:      StatusRunning,
	}
	if idx == len(b.script.Steps)-1 {
		result := b.script.Result
		result.SessionID = session.ID
		if state.question != "" {
			result.Question = state.question
		}
		payload, err := json.Marshal(result)
		if err != nil {
			return Snapshot{}, fmt.Errorf("consult: encode scripted result: %w", err)
		}
		snap.Status = StatusCompleted
		snap.Result = payload
	}
	return snap, nil
}
