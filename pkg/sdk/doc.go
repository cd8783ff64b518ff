// Package agrirag provides an embedded client for crop-protection question
// retrieval over a read-only knowledge base.
//
// A single call extracts domain tags from the question, retrieves over
// several hops, recovers when nothing matches, and checks whether the
// evidence covers what the user asked for:
//
//	client, _ := agrirag.New(ctx,
//	    agrirag.WithKnowledgeBase("data/kb.parquet"),
//	    agrirag.WithOpenAI(agrirag.OpenAIConfig{
//	        APIKey:         key,
//	        EmbeddingModel: "text-embedding-3-small",
//	        OracleModel:    "gpt-4o-mini",
//	    }),
//	)
//	defer client.Close()
//
//	res, _ := client.RetrieveAndVerify(ctx, "thuốc trừ rầy nâu cho lúa",
//	    agrirag.WithUserID("u-42"),
//	)
//	if res.NoData {
//	    // nothing relevant in the knowledge base
//	}
//	prompt := res.Context + res.SystemOverride
//
// Conversation memory for follow-up questions needs WithRedis.
package agrirag
