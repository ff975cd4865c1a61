// 通过connect RPC（HTTP/2 h2c，JSON编码）远程驱动仿真器
// 服务端包装任意entity.ISimulator，客户端实现entity.ISimulator，外部仿真器桥接进程只需实现同一组JSON接口
package remote

import (
	"encoding/json"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// jsonCodec JSON编解码
// 说明：替换connect内置的json编解码（只接受proto.Message），普通结构体走encoding/json，proto消息走protojson
type jsonCodec struct{}

var _ connect.Codec = jsonCodec{}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	if m, ok := v.(proto.Message); ok {
		return protojson.Marshal(m)
	}
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if m, ok := v.(proto.Message); ok {
		return protojson.Unmarshal(data, m)
	}
	return json.Unmarshal(data, v)
}
