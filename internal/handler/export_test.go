package handler

var WriteServiceError = writeServiceError
