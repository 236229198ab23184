package handler

const htmlContentType = "text/html; charset=utf-8"

var deletedPage = []byte(`<!DOCTYPE html>
<html lang="es">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Eco Eliminado</title>
</head>
<body style="font-family: sans-serif; text-align: center; padding: 50px;">
  <h1 style="color: #e74c3c;">🗑️ Eco Eliminado</h1>
  <p>El audio ha sido eliminado permanentemente de la plataforma.</p>
  <p>Puedes cerrar esta ventana.</p>
</body>
</html>
`)

var keptPage = []byte(`<!DOCTYPE html>
<html lang="es">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Eco Aprobado</title>
</head>
<body style="font-family: sans-serif; text-align: center; padding: 50px;">
  <h1 style="color: #2ecc71;">✅ Eco Aprobado</h1>
  <p>El audio ha sido marcado como seguro y es visible para todos.</p>
  <p>Puedes cerrar esta ventana.</p>
</body>
</html>
`)
