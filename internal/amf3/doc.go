// Package amf3 provides encoding and decoding of Action Message Format 3
// (AMF3) data. AMF3 is the compact binary format Flash and Flex clients
// use to exchange ActionScript values with a remoting gateway.
//
// Values are built from the concrete types in this package (Integer,
// String, *Array, *Object and so on) and written with Serialize, or read
// back with Deserialize:
//
//	data, err := amf3.Serialize(amf3.NewArray(amf3.String("RESUMO"), amf3.String("RESUMO")))
//	values, err := amf3.Deserialize(data)
//
// A buffer is a plain concatenation of values with no envelope. Strings,
// dates, arrays, objects and traits are written in full the first time
// they occur in a Serialize call and as a short table index afterwards,
// so all values in one buffer must be encoded by one Encoder and decoded
// by one Decoder. Tables never outlive the Encoder or Decoder that owns
// them, which makes concurrent calls on independent inputs safe.
//
// XML, XMLDocument and Dictionary are not supported in either direction.
package amf3
