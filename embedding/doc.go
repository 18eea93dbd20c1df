// 包 embedding 提供查询向量化能力。
//
// Provider 接口抽象嵌入服务，OpenAIProvider 为默认实现，
// DedupProvider 通过 singleflight 合并并发的相同查询。
// 上游失败统一映射为 EMBEDDING_UNAVAILABLE，调用方据此降级。
package embedding
