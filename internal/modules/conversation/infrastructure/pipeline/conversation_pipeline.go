package pipeline

import (
	"context"
	"fmt"

	"RAGLink/internal/gateway/vectordb"
	"RAGLink/internal/modules/conversation/domain/repository"
	"RAGLink/internal/modules/conversation/infrastructure/nl2sql"
	"RAGLink/internal/modules/conversation/infrastructure/references"
	"RAGLink/internal/modules/conversation/infrastructure/search"
	sourceRepository "RAGLink/internal/modules/source/domain/repository"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
)

// DataScope 一轮会话允许使用的资料范围。每个取值静态对应
// 一份系统提示与一组工具，不做运行时字符串查表。
type DataScope string

const (
	// ScopeSource 使用者自建资料源：文件、PDF 段落、匯入資料表
	ScopeSource DataScope = "source"
)

type ConversationRequest struct {
	UserID    string
	SessionID string
	// AiMessageID 本轮要写入答案的 ai 消息（由入口预创建，PENDING 状态）
	AiMessageID int64
	Question    string
	// Scope 资料范围，空值按 ScopeSource 处理
	Scope DataScope
	// ReferenceFileIDs 用户显式指定的引用文件，可为空
	ReferenceFileIDs []string
}

type ConversationResult struct {
	AiMessageID int64                   `json:"ai_message_id"`
	Answer      string                  `json:"answer"`
	References  []*references.Reference `json:"references"`
	ToolCalls   int                     `json:"tool_calls"`
	DurationMs  int64                   `json:"duration_ms"`
	Err         error                   `json:"-"`
}

// ConversationPipeline 一轮会话的编排流水线：
// 拼历史 → 模型推理 →（最多 maxToolIterations 轮工具调用）→ 落库答案与引用。
// 工具消息在调用当下即落库挂在 ai 消息下，失败也保留，便于审计。
type ConversationPipeline struct {
	sessionRepo  repository.ChatSessionRepository
	messageRepo  repository.ChatMessageRepository
	fileRepo     sourceRepository.SourceFileRepository
	hybridEngine *search.HybridEngine
	nl2sqlEngine *nl2sql.Engine
	embedder     embedding.Embedder
	vs           *vectordb.MilvusStore
	chatModel    model.BaseChatModel
	extractor    *references.Extractor
	r            compose.Runnable[*ConversationRequest, *ConversationResult]
}

func NewConversationPipeline(
	sessionRepo repository.ChatSessionRepository,
	messageRepo repository.ChatMessageRepository,
	fileRepo sourceRepository.SourceFileRepository,
	hybridEngine *search.HybridEngine,
	nl2sqlEngine *nl2sql.Engine,
	embedder embedding.Embedder,
	vs *vectordb.MilvusStore,
	chatModel model.BaseChatModel,
	extractor *references.Extractor,
) (*ConversationPipeline, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is nil")
	}
	if sessionRepo == nil || messageRepo == nil {
		return nil, fmt.Errorf("conversation repositories are nil")
	}
	p := &ConversationPipeline{
		sessionRepo:  sessionRepo,
		messageRepo:  messageRepo,
		fileRepo:     fileRepo,
		hybridEngine: hybridEngine,
		nl2sqlEngine: nl2sqlEngine,
		embedder:     embedder,
		vs:           vs,
		chatModel:    chatModel,
		extractor:    extractor,
	}
	ctx := context.Background()
	r, err := p.buildGraph(ctx)
	if err != nil {
		return nil, err
	}
	p.r = r
	return p, nil
}

func (p *ConversationPipeline) Execute(ctx context.Context, req *ConversationRequest) (*ConversationResult, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	res, err := p.r.Invoke(ctx, req)
	if err != nil {
		return &ConversationResult{AiMessageID: req.AiMessageID, Err: err}, err
	}
	return res, res.Err
}

func (p *ConversationPipeline) buildGraph(ctx context.Context) (compose.Runnable[*ConversationRequest, *ConversationResult], error) {
	const (
		LoadContext = "LoadContext"
		BuildPrompt = "BuildPrompt"
		ChatModel   = "ChatModel"
		Tools       = "Tools"
		Persist     = "Persist"
	)

	g := compose.NewGraph[*ConversationRequest, *ConversationResult]()

	_ = g.AddLambdaNode(LoadContext, compose.InvokableLambdaWithOption(p.loadContextNode), compose.WithNodeName(LoadContext))
	_ = g.AddLambdaNode(BuildPrompt, compose.InvokableLambdaWithOption(p.buildPromptNode), compose.WithNodeName(BuildPrompt))
	_ = g.AddLambdaNode(ChatModel, compose.InvokableLambdaWithOption(p.chatModelNode), compose.WithNodeName(ChatModel))
	_ = g.AddLambdaNode(Tools, compose.InvokableLambdaWithOption(p.toolsNode), compose.WithNodeName(Tools))
	_ = g.AddLambdaNode(Persist, compose.InvokableLambdaWithOption(p.persistNode), compose.WithNodeName(Persist))

	_ = g.AddEdge(compose.START, LoadContext)
	_ = g.AddEdge(LoadContext, BuildPrompt)
	_ = g.AddEdge(BuildPrompt, ChatModel)

	shouldCallTools := func(ctx context.Context, st *conversationState) (string, error) {
		hasToolCalls := st.LastResponse != nil && len(st.LastResponse.ToolCalls) > 0
		reachedMaxIterations := st.IterationCount >= st.MaxIterations
		if st.Err == nil && hasToolCalls && !reachedMaxIterations {
			return Tools, nil
		}
		return Persist, nil
	}

	branch := compose.NewGraphBranch(shouldCallTools, map[string]bool{
		Tools:   true,
		Persist: true,
	})

	_ = g.AddBranch(ChatModel, branch)
	_ = g.AddEdge(Tools, ChatModel)
	_ = g.AddEdge(Persist, compose.END)

	maxSteps := 16
	return g.Compile(ctx,
		compose.WithGraphName("ConversationPipeline"),
		compose.WithNodeTriggerMode(compose.AnyPredecessor),
		compose.WithMaxRunSteps(maxSteps))
}
