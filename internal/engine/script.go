package engine

import (
	"fmt"
	"strings"

	"github.com/ashureev/kiroku/internal/codes"
	"github.com/ashureev/kiroku/internal/domain"
)

// FallbackDisplayName is used when the profile lookup fails.
const FallbackDisplayName = "協力者様"

// Canonical puzzle codes. Word answers from the printed materials are
// registered as aliases in the story table.
const (
	codePuzzle1 = "kbn-301-f01"
	codePuzzle2 = "kbn-302-f01"
	codePuzzle3 = "kbn-303-f01"
)

// NewStoryTable builds the built-in narrative code table.
func NewStoryTable() (*codes.Table, error) {
	records := []domain.Record{
		{
			Code:  "KBN-301-F01",
			Title: "明日の記録 #1：駅ホーム",
			Body:  record1,
			Hint:  "「11-5-25-15-14-5」を A1Z26（A=1, B=2…）で変換してみてください。答えは小文字・半角英字で。",
		},
		{
			Code:  "KBN-302-F01",
			Title: "次の事件B：スーパー棚崩落",
			Body:  record2,
			Hint:  "店内写真の“青い買い物カゴ”。色と物、ふたつの英単語をつなげてください。",
		},
		{
			Code:  "KBN-303-F01",
			Title: "次の事件C：交差点の信号機",
			Body:  record3,
			Hint:  "すべての現場に残されていたもの。赤い、あれです。英語ふた語をひとつに。",
		},
	}
	aliases := map[string]string{
		"keyone":     codePuzzle1,
		"bluebasket": codePuzzle2,
		"redticket":  codePuzzle3,
	}
	return codes.Build(records, aliases)
}

// --- quick-reply choice sets ---

var (
	introChoices = []domain.Choice{
		{Label: "受け取る", Text: "受け取る"},
		{Label: "断る", Text: "断る"},
	}
	deathChoices = []domain.Choice{
		{Label: "書き換える", Text: "書き換える"},
		{Label: "受け入れる", Text: "受け入れる"},
	}
	puzzleChoices = []domain.Choice{
		{Label: "ヒント", Text: "ヒント"},
		{Label: "ログ", Text: "ログ"},
	}
	finaleChoices = []domain.Choice{
		{Label: "真実を見る", Text: "真実を見る"},
		{Label: "やめる", Text: "やめる"},
	}
	epilogueChoices = []domain.Choice{
		{Label: "クリア", Text: "クリア"},
	}
)

// --- intro sequence ---

func introSequence(name string) []domain.Message {
	return []domain.Message{
		domain.Text(fmt.Sprintf(`…%sさん、ですよね？（間違っていたらすみません）

急に失礼します。私は空白社の調査部の者です。
あなたに至急確認していただきたいことがあり、連絡しました。`, name)),
		domain.Text(`今朝、弊社にあなたの"明日の記録"が届きました。
まだ起きていないはずの出来事が、なぜか克明に記されています。`),
		domain.Text(`しかし、その記録は断片的なデータにすぎず、こちらでも全容を把握できていません。`),
		domain.TextWithChoices(`……まずは内容を確認していただけますか？`, introChoices...),
	}
}

const introInProgressText = `……記録の転送は、すでに進行中です。
回線が不安定なため、少しだけお待ちください。`

func thanksText(name string) string {
	return fmt.Sprintf("%sさん、ありがとうございます。最新の記録データを送信します。", name)
}

// --- death record ---

const deathRecord = `📄 記録No.002 - 20XX年8月17日 午後7時12分
📍 都内某駅 改札前

▶ 状況：本人、階段から転落し頭部を強打。
▶ 目撃者：「赤い切符を拾おうとしていた」
▶ 現場に目立った異常なし。事故として処理予定。

……記録は、ここで途切れています。`

const deathChoiceText = `――あなたは、このまま死を受け入れますか？

それとも、"書き換える"方法を探しますか。`

const acceptFateText = `……記録を閉じます。必要になったら「思い出す」と送ってください。`

const declineText = `了解しました。必要になったら「スタート」または「はじめる」と送ってください。`

const rewriteAckText = `了解しました。まずは最初の断片を送ります。`

// --- puzzle fragments ---

const record1 = `────────────
【明日の記録 #1：駅ホーム】

03:12　ホーム端。あなたの2つ隣に立つ人物。
　　　片手に、使い込まれた"赤い切符"。

03:13　アナウンスが流れる。足もとに影がもう一つ増える。
　　　スマホを狙う動き。接触は未遂で終わる。

03:14　監視カメラに切符がはっきり映る。
　　　角は摩耗、縁は黒ずみ。ナンバリングは読み取れない。

補足：記録番号　11-5-25-15-14-5
────────────
（※わかった語を小文字・半角英字で入力）`

const stop1ConfirmText = `【停止コード1 取得】
入力を確認：KBN-301-F01

駅ホームでの"接触未遂"の固定は解除済み。`

const record2 = `────────────
【次の事件B：スーパー棚崩落】

17:46　3番通路。缶詰の山が不自然に高い。
　　　足もとに"青い買い物カゴ"がひとつ、逆さに置かれている。

17:47　棚が軋む。カゴの位置が、崩落の起点を指している。

店内写真の「配置」を鍵に、裏ページが開きます。

※分かった語を小文字で入力／「ヒント」「ログ」も使えます。`

const stop2ConfirmText = `【停止コード2 取得】
入力を確認：KBN-302-F01

スーパー3番通路の"崩落"の固定は解除済み。`

const record3 = `────────────
【次の事件C：交差点の信号機】

19:05　駅前スクランブル。信号機が一斉に青へ。
　　　渡り始めた群衆の先頭、あなたの足もとに、
　　　見覚えのある"赤い切符"が落ちている。

19:06　拾おうとした、その瞬間――

すべての現場に共通するものが、最後の鍵です。

※分かった語を小文字で入力／「ヒント」「ログ」も使えます。`

const stop3ConfirmText = `【停止コード3 取得】
入力を確認：KBN-303-F01

交差点での"転落"の固定は解除済み。`

const partialAckText = `【停止コード 取得】
記録の固定を一部解除しました。
ただし、まだ欠けているコードがあります。「進捗」で確認できます。`

// --- finale ---

const finaleIntroText = `3つの停止コードが、すべて揃いました。

"明日の記録"の固定は、完全に解除されています。
最後に、この記録が誰によって書かれたのか――
その真実を開示する準備ができました。`

const finaleChoiceText = `――真実を、見ますか？`

const revealAckText = `……開示します。`

const revealVariantA = `【開示：記録の差出人】

"明日の記録"を書いたのは、明日のあなた自身でした。
一度目の明日を生きて、戻れなかったあなたが、
今日のあなたに宛てて送った、長い長い警告文です。

切符は、その往復の乗車券でした。`

const revealVariantB = `【開示：記録の差出人】

空白社調査部に、調査員は登録されていません。
このアカウントの通信記録は、明日の日付から届いています。

あなたと話していたのは、書き換えられて消えた
"もうひとつの明日"の残響でした。`

const finaleThanksText = `ここまで辿り着いてくれて、ありがとうございました。

あなたの明日は、もう固定されていません。`

const epilogueText = `【エピローグ】

翌朝。駅の改札前。
階段は、ただの階段のままでした。

記録No.002は、空白のまま閉じられました。

――完。`

const abandonText = `……記録の追跡を中止します。
続きが気になったら「スタート」と送ってください。`

const resetDoneText = `記録を初期化しました。最初から始めるには「スタート」と送ってください。`

// --- auxiliary replies ---

const logEmptyText = `再送できる記録がありません。`

const hintDefaultText = `今は記録に沿って進めてください。`

const hintFinalReadyText = `選ぶだけです。真実を見るか、ここでやめるか。`

const menuText = `入力を受け付けました。
・「スタート」/「はじめる」…初回のご案内
・「受け取る」…記録の受け取り
・「書き換える」…最初の断片へ
・「ヒント」/「ログ」…補助
・「進捗」…停止コードの確認
・「ブックマーク」…記録番号の控え
・「リセット」…最初からやり直す`

const bookmarkNoCodeText = `記録番号が見つかりません。「KBN-301-F01」の形式で指定してください。`

const bookmarkEmptyText = `控えている記録番号はありません。`

const bookmarkClearedText = `ブックマークをすべて消去しました。`

func bookmarkAddedText(code string) string {
	return fmt.Sprintf("控えました：%s", code)
}

func bookmarkRemovedText(code string) string {
	return fmt.Sprintf("控えから外しました：%s", code)
}

func bookmarkListText(codes []string) string {
	var b strings.Builder
	b.WriteString("【ブックマーク】\n")
	for i, code := range codes {
		fmt.Fprintf(&b, "%d. %s\n", i+1, code)
	}
	return strings.TrimRight(b.String(), "\n")
}

func progressText(s *domain.Session) string {
	var b strings.Builder
	b.WriteString("【進捗】\n")
	labels := []string{"停止コード1", "停止コード2", "停止コード3"}
	for i, m := range domain.Milestones {
		mark := "⬜"
		if s.HasMilestone(m) {
			mark = "✅"
		}
		fmt.Fprintf(&b, "%s：%s\n", labels[i], mark)
	}
	return strings.TrimRight(b.String(), "\n")
}

func recordViewText(rec *domain.Record) string {
	return fmt.Sprintf("📄 %s\n\n%s", rec.Title, rec.Body)
}

// hintText returns the stage-specific hint. Puzzle stages surface the
// current record's hint from the story table.
func hintText(stage domain.Stage, table *codes.Table) string {
	var code string
	switch stage {
	case domain.StageA1:
		code = codePuzzle1
	case domain.StageB0:
		code = codePuzzle2
	case domain.StageC0:
		code = codePuzzle3
	case domain.StageFinalReady:
		return hintFinalReadyText
	default:
		return hintDefaultText
	}
	if rec := table.Resolve(code); rec != nil && rec.Hint != "" {
		return rec.Hint
	}
	return hintDefaultText
}
