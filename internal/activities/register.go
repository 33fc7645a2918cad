package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ExtractTextActivity)
	w.RegisterActivity(a.ChunkDocumentActivity)
	w.RegisterActivity(a.EmbedChunksActivity)
	w.RegisterActivity(a.IndexChunksActivity)
	w.RegisterActivity(a.UpdateDocumentStatusActivity)
	w.RegisterActivity(a.WriteDocumentArtifactsActivity)
	w.RegisterActivity(a.InvalidateProjectsActivity)
	w.RegisterActivity(a.DeleteDocumentActivity)
	w.RegisterActivity(a.InitAnswerRunActivity)
	w.RegisterActivity(a.AgentStepActivity)
	w.RegisterActivity(a.ApplyFeedbackActivity)
	w.RegisterActivity(a.PersistAnswerActivity)
	w.RegisterActivity(a.MarkRunAbandonedActivity)
	w.RegisterActivity(a.EvaluateAnswerActivity)
	w.RegisterActivity(a.UpdateProjectStatusActivity)
	w.RegisterActivity(a.ListProjectQuestionsActivity)
}
